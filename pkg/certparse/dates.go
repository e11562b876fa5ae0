package certparse

import (
	"regexp"
	"strconv"
	"time"
)

// datePattern accepts yyyy-mm-dd and day-first dates with '/', '.' or '-' separators and
// a two- or four-digit year.
var datePattern = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b|\b(\d{1,2})[./\-](\d{1,2})[./\-](\d{4}|\d{2})\b`)

// twoDigitYearPivot splits two-digit years: below it they are 20yy, otherwise 19yy.
const twoDigitYearPivot = 70

// DateMatch is a date found in text with its byte span.
type DateMatch struct {
	Time  time.Time
	Start int
	End   int
}

// ParseDate returns the first valid date in s, at midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	matches := FindDates(s)
	if len(matches) == 0 {
		return time.Time{}, false
	}
	return matches[0].Time, true
}

// FindDates returns every valid date in s in document order. Day-first is assumed; when
// the middle component exceeds 12 it must be the day, so day and month are swapped.
func FindDates(s string) []DateMatch {
	var out []DateMatch
	for _, m := range datePattern.FindAllStringSubmatchIndex(s, -1) {
		var year, month, day int
		if m[2] >= 0 {
			year = atoi(s[m[2]:m[3]])
			month = atoi(s[m[4]:m[5]])
			day = atoi(s[m[6]:m[7]])
		} else {
			day = atoi(s[m[8]:m[9]])
			month = atoi(s[m[10]:m[11]])
			yearText := s[m[12]:m[13]]
			year = atoi(yearText)
			if len(yearText) == 2 {
				if year < twoDigitYearPivot {
					year += 2000
				} else {
					year += 1900
				}
			}
			if month > 12 && day <= 12 {
				day, month = month, day
			}
		}

		t, ok := validDate(year, month, day)
		if !ok {
			continue
		}
		out = append(out, DateMatch{Time: t, Start: m[0], End: m[1]})
	}
	return out
}

func validDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2200 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
