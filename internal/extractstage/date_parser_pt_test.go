package extractstage

import (
	"testing"
	"time"
)

func TestParseDateRobustPT(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "explicit full date",
			in:   "15 de dezembro de 2025",
			want: time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "with Data prefix",
			in:   "Data: 3 de março de 2024",
			want: time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "marco without cedilla",
			in:   "1 de marco de 2023",
			want: time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "relative phrase not resolved",
			in:      "ontem à noite",
			wantErr: true,
		},
		{
			name:    "empty string",
			in:      "",
			wantErr: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := parseDateRobustPT(c.in)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(c.want) {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestParseEventDate(t *testing.T) {
	got, err := parseEventDate("2025-12-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseEventDate_FallsBackToDateparse(t *testing.T) {
	got, err := parseEventDate("2025/12/15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.December || got.Day() != 15 {
		t.Errorf("got %v, want 2025-12-15", got)
	}
}
