package llm

import "testing"

func TestExtractFirstJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"a":1}`,
			want: `{"a":1}`,
		},
		{
			name: "wrapped in prose",
			in:   `Sure, here's the result: {"a":1} let me know if you need more.`,
			want: `{"a":1}`,
		},
		{
			name: "markdown fenced",
			in:   "```json\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "nested braces",
			in:   `{"a":{"b":2},"c":3}`,
			want: `{"a":{"b":2},"c":3}`,
		},
		{
			name: "brace inside string value ignored",
			in:   `{"a":"contains } brace"}`,
			want: `{"a":"contains } brace"}`,
		},
		{
			name: "no object",
			in:   "no json here",
			want: "",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExtractFirstJSONObject(c.in); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}
