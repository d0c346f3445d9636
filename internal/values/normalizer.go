// Package values provides datatype detection and value normalization for
// attribute comparison.
package values

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Datatypes recognized by the normalizer.
const (
	TypeString     = "string"
	TypeCoordinate = "coordinate"
	TypeDate       = "date"
	TypeDuration   = "duration"
	TypeTelephone  = "telephone"
)

// Datatype infers the datatype of an attribute from its name.
func Datatype(attribute string) string {
	switch strings.ToLower(attribute) {
	case "longitude", "latitude":
		return TypeCoordinate
	case "datepublished", "date", "foundingdate", "birthdate":
		return TypeDate
	case "duration":
		return TypeDuration
	case "telephone":
		return TypeTelephone
	default:
		return TypeString
	}
}

// Normalize canonicalizes a raw value for the given datatype. Values that
// cannot be normalized are returned unchanged; normalization is
// best-effort and never fails.
func Normalize(value, datatype string) string {
	switch datatype {
	case TypeCoordinate:
		return NormalizeCoordinate(value)
	case TypeDate:
		return NormalizeDate(value)
	case TypeDuration:
		return NormalizeDuration(value)
	case TypeTelephone:
		return normalizeTelephone(value)
	default:
		return strings.TrimSpace(value)
	}
}

// NormalizeCoordinate renders a decimal-degree coordinate in plain
// decimal notation. Scientific notation and comma decimal separators are
// accepted; anything non-numeric is returned unchanged.
func NormalizeCoordinate(value string) string {
	f, err := ParseCoordinate(value)
	if err != nil {
		return value
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseCoordinate parses a decimal-degree coordinate.
func ParseCoordinate(value string) (float64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing coordinate %q: %w", value, err)
	}
	return f, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1.2.2006",
	"2-Jan-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
}

// NormalizeDate renders a date as YYYY-MM-DD. A bare year maps to January
// 1st of that year; unparseable values are returned unchanged.
func NormalizeDate(value string) string {
	trimmed := strings.TrimSpace(value)

	if year, err := strconv.Atoi(trimmed); err == nil && year >= 1000 && year <= 9999 {
		return fmt.Sprintf("%04d-01-01", year)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}

var (
	durationISO   = regexp.MustCompile(`^PT?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
	durationText  = regexp.MustCompile(`^(?:(\d+)\s*(?:hr|h|hours?))?\s*(?:(\d+)\s*(?:min|m|minutes?))?\s*(?:(\d+)\s*(?:sec|s|seconds?))?$`)
	durationClock = regexp.MustCompile(`^(\d+):(\d{1,2})$`)
)

// NormalizeDuration renders a duration in canonical ISO 8601 form
// (PT#H#M#S with zero components omitted). Accepted inputs are ISO 8601
// durations, "12hr5m10s" style text, "h:mm" clock notation, and bare
// minute counts. Unparseable values are returned unchanged.
func NormalizeDuration(value string) string {
	trimmed := strings.TrimSpace(value)

	if minutes, err := strconv.Atoi(trimmed); err == nil {
		return formatDuration(0, minutes, 0)
	}

	if m := durationClock.FindStringSubmatch(trimmed); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		return formatDuration(hours, minutes, 0)
	}

	if m := durationISO.FindStringSubmatch(strings.ToUpper(trimmed)); m != nil && (m[1] != "" || m[2] != "" || m[3] != "") {
		return formatDuration(atoiOrZero(m[1]), atoiOrZero(m[2]), atoiOrZero(m[3]))
	}

	if m := durationText.FindStringSubmatch(strings.ToLower(trimmed)); m != nil && (m[1] != "" || m[2] != "" || m[3] != "") {
		return formatDuration(atoiOrZero(m[1]), atoiOrZero(m[2]), atoiOrZero(m[3]))
	}

	return value
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// formatDuration carries overflowing seconds and minutes into the next
// unit before rendering, so PT120M and PT2H normalize identically.
func formatDuration(hours, minutes, seconds int) string {
	minutes += seconds / 60
	seconds %= 60
	hours += minutes / 60
	minutes %= 60

	var b strings.Builder
	b.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if seconds > 0 {
		fmt.Fprintf(&b, "%dS", seconds)
	}
	if b.Len() == 2 {
		b.WriteString("0S")
	}
	return b.String()
}

var nonDigits = regexp.MustCompile(`\D`)

// normalizeTelephone strips everything but digits.
func normalizeTelephone(value string) string {
	digits := nonDigits.ReplaceAllString(value, "")
	if digits == "" {
		return value
	}
	return digits
}
