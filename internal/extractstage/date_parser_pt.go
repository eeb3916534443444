package extractstage

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// parseDateRobustPT extends the teacher's parseDateRobust/parseSpanishDate
// idiom (internal/ingest/date_parser.go) with a Portuguese (pt-BR) branch,
// used to recover an event date from the date_verification quote when the
// LLM reported an explicit date in the text but returned no date value.
func parseDateRobustPT(text string) (time.Time, error) {
	text = cleanDateStringPT(text)

	if t := parsePortugueseDateWithRegex(text); !t.IsZero() {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("extractstage: unable to parse portuguese date: %s", text)
}

var portugueseMonths = map[string]time.Month{
	"janeiro":   time.January,
	"fevereiro": time.February,
	"março":     time.March,
	"marco":     time.March,
	"abril":     time.April,
	"maio":      time.May,
	"junho":     time.June,
	"julho":     time.July,
	"agosto":    time.August,
	"setembro":  time.September,
	"outubro":   time.October,
	"novembro":  time.November,
	"dezembro":  time.December,
}

// parsePortugueseDateWithRegex handles only the explicit form
// "<day> de <month name> de <four-digit year>", e.g. "15 de dezembro de
// 2025"; it does not attempt to resolve relative phrases ("ontem", "semana passada") since
// those are exactly the cases spec §4.7 requires date=null for.
func parsePortugueseDateWithRegex(text string) time.Time {
	re := regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(janeiro|fevereiro|março|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+de\s+(\d{4})\b`)
	m := re.FindStringSubmatch(text)
	if len(m) != 4 {
		return time.Time{}
	}
	month, ok := portugueseMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}
	}
	var day, year int
	if _, err := fmt.Sscanf(m[1], "%d", &day); err != nil {
		return time.Time{}
	}
	if _, err := fmt.Sscanf(m[3], "%d", &year); err != nil {
		return time.Time{}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func cleanDateStringPT(s string) string {
	prefixes := []string{"Data:", "Ocorrido em:", "Em:"}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
