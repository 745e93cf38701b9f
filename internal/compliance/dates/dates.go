// Package dates normalizes the date formats found on UK compliance certificates
// and performs the calendar arithmetic used for renewal due dates.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the canonical output layout for every normalized date.
const ISOLayout = "2006-01-02"

var (
	numericDate = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{2}|\d{4})$`)
	namedDate   = regexp.MustCompile(`^(\d{1,2})\s+([A-Za-z]+)\.?\s+(\d{4})$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// NormalizeUKDate converts D/M/YYYY, D-M-YYYY (two-digit years mean 20YY) and
// "D Month YYYY" into YYYY-MM-DD. The second return value is false when the
// input has none of those shapes or names a day that does not exist.
func NormalizeUKDate(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		yearStr := m[3]
		if len(yearStr) == 2 {
			yearStr = "20" + yearStr
		}
		year, _ := strconv.Atoi(yearStr)
		return format(year, month, day)
	}

	if m := namedDate.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return "", false
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		return format(year, int(month), day)
	}

	return "", false
}

func format(year, month, day int) (string, bool) {
	if !Valid(year, month, day) {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// Valid reports whether year-month-day names a real calendar day.
func Valid(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= DaysIn(year, time.Month(month))
}

// DaysIn returns the number of days in the given month, honouring leap years.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseISO parses a YYYY-MM-DD string as a UTC date.
func ParseISO(iso string) (time.Time, error) {
	t, err := time.ParseInLocation(ISOLayout, strings.TrimSpace(iso), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO date %q: %w", iso, err)
	}
	return t, nil
}

// AddYears adds n calendar years to an ISO date.
// 29 Feb plus one year rolls over to 1 Mar, as time.AddDate does.
func AddYears(iso string, n int) (string, error) {
	t, err := ParseISO(iso)
	if err != nil {
		return "", err
	}
	return t.AddDate(n, 0, 0).Format(ISOLayout), nil
}

// AddMonths adds n calendar months to an ISO date. Days past the end of the
// target month overflow into the next one (31 Jan + 1 month = 3 Mar).
func AddMonths(iso string, n int) (string, error) {
	t, err := ParseISO(iso)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, n, 0).Format(ISOLayout), nil
}
