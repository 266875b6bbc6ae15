package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// BusinessTimezone is the calendar reference for all relative date
// words. Customers book in local time regardless of where the process
// runs.
const BusinessTimezone = "America/Sao_Paulo"

var businessLoc = func() *time.Location {
	loc, err := time.LoadLocation(BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Today returns the current calendar date in the business timezone,
// truncated to midnight.
func Today() time.Time {
	now := time.Now().In(businessLoc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, businessLoc)
}

var (
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	brDateRe  = regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})(?:[/\-](\d{2,4}))?\b`)
)

// weekdayTokens maps normalized Portuguese weekday words to time.Weekday.
var weekdayTokens = []struct {
	token string
	day   time.Weekday
}{
	{"segunda", time.Monday},
	{"terca", time.Tuesday},
	{"quarta", time.Wednesday},
	{"quinta", time.Thursday},
	{"sexta", time.Friday},
	{"sabado", time.Saturday},
	{"domingo", time.Sunday},
}

// ResolveDate parses a date expression against a reference date and
// returns it in ISO form (YYYY-MM-DD). Recognized forms: "hoje",
// "amanha", "depois de amanha", weekday names (optionally qualified
// with "que vem"/"proxima" to force next week), ISO dates, and the
// local D/M[/YY|YYYY] form where a missing year defaults to the
// reference year. Returns false when nothing matches; it never guesses
// a date out of unrelated text.
func ResolveDate(raw string, today time.Time) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	lower := Normalize(raw)

	hasWord := func(w string) bool {
		return regexp.MustCompile(`\b` + w + `\b`).MatchString(lower)
	}

	if strings.Contains(lower, "depois de amanha") {
		return isoDate(today.AddDate(0, 0, 2)), true
	}
	if hasWord("amanha") {
		return isoDate(today.AddDate(0, 0, 1)), true
	}
	if hasWord("hoje") {
		return isoDate(today), true
	}

	if m := isoDateRe.FindString(raw); m != "" {
		return m, true
	}

	if m := brDateRe.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if day < 1 || day > 31 || month < 1 || month > 12 {
			return "", false
		}
		year := today.Year()
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if len(m[3]) == 2 {
				y += 2000
			}
			year = y
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}

	for _, w := range weekdayTokens {
		if !strings.Contains(lower, w.token) {
			continue
		}
		delta := (int(w.day) - int(today.Weekday()) + 7) % 7
		wantsNext := strings.Contains(lower, "que vem") ||
			strings.Contains(lower, "proximo") ||
			strings.Contains(lower, "proxima")
		if delta == 0 && wantsNext {
			delta = 7
		}
		return isoDate(today.AddDate(0, 0, delta)), true
	}

	return "", false
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}
