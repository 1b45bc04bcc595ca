package goals

import (
	"fmt"
	"strconv"
	"time"
)

const (
	MinWeek = 1
	MaxWeek = 53
	MinYear = 2000
	MaxYear = 2100
)

const dateLayout = "2006-01-02"

// InvalidFormatError reports a week reference that cannot be decoded.
type InvalidFormatError struct {
	Input  string
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid week reference %q: %s", e.Input, e.Reason)
}

// DateRange is an inclusive range of civil dates. Start and End are always
// midnight UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of calendar days in the range, 0 when End < Start.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return daysBetween(r.Start, r.End) + 1
}

func (r DateRange) Contains(day time.Time) bool {
	d := civilDate(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// WeekRef identifies a Monday-based calendar week of a week-year.
type WeekRef struct {
	Week int `json:"week"`
	Year int `json:"year"`
}

// String encodes the reference in the canonical WWYYYY form.
func (w WeekRef) String() string {
	return fmt.Sprintf("%02d%04d", w.Week, w.Year)
}

// LegacyString renders the old YYYYWW encoding still found in stored data.
func (w WeekRef) LegacyString() string {
	return fmt.Sprintf("%04d%02d", w.Year, w.Week)
}

func (w WeekRef) rangeViolation() string {
	if w.Week < MinWeek || w.Week > MaxWeek {
		return fmt.Sprintf("week %d out of range", w.Week)
	}
	if w.Year < MinYear || w.Year > MaxYear {
		return fmt.Sprintf("year %d out of range", w.Year)
	}
	return ""
}

// Range resolves the reference to its Monday..Sunday dates. Week 1 starts on
// the Monday on or before Jan 1 of Year.
func (w WeekRef) Range() DateRange {
	start := firstMonday(w.Year).AddDate(0, 0, (w.Week-1)*7)
	return DateRange{Start: start, End: start.AddDate(0, 0, 6)}
}

// CurrentWeekReference returns the week containing today. The week-year is the
// year whose week 1 contains that Monday, so Monday 2024-12-30 is 012025.
func CurrentWeekReference(today time.Time) WeekRef {
	monday := mondayOnOrBefore(civilDate(today))

	year := monday.Year()
	if next := firstMonday(year + 1); !monday.Before(next) {
		year++
	}
	week := daysBetween(firstMonday(year), monday)/7 + 1
	return WeekRef{Week: week, Year: year}
}

// ResolveWeekRange decodes ref (either encoding) and returns its date range.
func ResolveWeekRange(ref string) (DateRange, error) {
	w, err := ParseWeekRef(ref)
	if err != nil {
		return DateRange{}, err
	}
	return w.Range(), nil
}

// ParseWeekRef decodes persisted references in either the canonical WWYYYY or
// the legacy YYYYWW encoding. A string whose first four digits form a year in
// [2000,2099] is read as legacy, so canonical refs for week 20 of any year
// decode to the wrong week; new input should go through ParseCanonicalWeekRef.
func ParseWeekRef(ref string) (WeekRef, error) {
	if len(ref) != 6 {
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: "expected 6 characters"}
	}
	a, errA := atoiDigits(ref[:2])
	b, errB := atoiDigits(ref[:4])
	if errA != nil || errB != nil {
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: "expected digits"}
	}

	var w WeekRef
	switch {
	case a == 20 && b >= 2000 && b <= 2099:
		week, err := atoiDigits(ref[4:])
		if err != nil {
			return WeekRef{}, &InvalidFormatError{Input: ref, Reason: "expected digits"}
		}
		w = WeekRef{Week: week, Year: b}
	case a >= MinWeek && a <= MaxWeek:
		year, err := atoiDigits(ref[2:])
		if err != nil {
			return WeekRef{}, &InvalidFormatError{Input: ref, Reason: "expected digits"}
		}
		w = WeekRef{Week: a, Year: year}
	default:
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: fmt.Sprintf("week %d out of range", a)}
	}

	if reason := w.rangeViolation(); reason != "" {
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: reason}
	}
	return w, nil
}

// ParseCanonicalWeekRef decodes only the WWYYYY encoding.
func ParseCanonicalWeekRef(ref string) (WeekRef, error) {
	if len(ref) != 6 {
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: "expected 6 characters"}
	}
	week, errW := atoiDigits(ref[:2])
	year, errY := atoiDigits(ref[2:])
	if errW != nil || errY != nil {
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: "expected digits"}
	}
	w := WeekRef{Week: week, Year: year}
	if reason := w.rangeViolation(); reason != "" {
		return WeekRef{}, &InvalidFormatError{Input: ref, Reason: reason}
	}
	return w, nil
}

// ParsePreferCanonical tries the WWYYYY encoding first and only falls back
// to the disambiguating decoder when that fails, so "202025" is week 20 of
// 2025 while "202505" still reads as week 5 of 2025.
func ParsePreferCanonical(ref string) (WeekRef, error) {
	if w, err := ParseCanonicalWeekRef(ref); err == nil {
		return w, nil
	}
	return ParseWeekRef(ref)
}

// ParseDate parses a YYYY-MM-DD civil date.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

// FormatDate renders the civil date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return civilDate(t).Format(dateLayout)
}

// MonthRange returns the first..last day of the given month.
func MonthRange(year int, month time.Month) DateRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: start, End: start.AddDate(0, 1, -1)}
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilDate drops the clock and location of t, keeping its calendar date as
// observed in t's own location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mondayOnOrBefore(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func firstMonday(year int) time.Time {
	return mondayOnOrBefore(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
}

func daysBetween(from time.Time, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func atoiDigits(s string) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.Atoi(s)
}
