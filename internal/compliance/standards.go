package compliance

import (
	"strings"
	"unicode"
)

// Standard is a catalogued management-system standard.
type Standard struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Catalog lists the standards procurement commonly requires.
func Catalog() []Standard {
	return []Standard{
		{Code: "ISO 9001", Title: "Quality Management"},
		{Code: "ISO 14001", Title: "Environmental Management"},
		{Code: "ISO 17025", Title: "Testing and Calibration Laboratories"},
		{Code: "ISO 27001", Title: "Information Security"},
		{Code: "ISO 45001", Title: "Occupational Health and Safety"},
		{Code: "IATF 16949", Title: "Automotive Quality"},
		{Code: "ISO 13485", Title: "Medical Devices"},
		{Code: "ISO 22000", Title: "Food Safety"},
		{Code: "AS 9100", Title: "Aerospace Quality"},
	}
}

// DefaultRelations maps a standard to the standards that earn partial
// credit for it.
func DefaultRelations() map[string][]string {
	return map[string][]string{
		"ISO 9001":   {"IATF 16949", "AS 9100", "ISO 13485"},
		"ISO 14001":  {"ISO 45001"},
		"ISO 17025":  {"ISO 9001"},
		"ISO 45001":  {"ISO 14001"},
		"IATF 16949": {"ISO 9001"},
		"ISO 13485":  {"ISO 9001"},
		"ISO 22000":  {"ISO 9001"},
		"AS 9100":    {"ISO 9001"},
	}
}

var standardPrefixes = []string{"IATF", "ISO", "IEC", "AS"}

// NormalizeStandard canonicalizes a standard name: upper case, dashes and
// underscores as spaces, single spaces, and a space between a known body
// prefix and its number ("iso9001" becomes "ISO 9001").
func NormalizeStandard(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToUpper(s))
	s = strings.Join(strings.Fields(s), " ")

	for _, p := range standardPrefixes {
		if len(s) > len(p) && strings.HasPrefix(s, p) && unicode.IsDigit(rune(s[len(p)])) {
			return p + " " + s[len(p):]
		}
	}
	return s
}

// NormalizeCert canonicalizes a certification name.
func NormalizeCert(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// covers reports whether held satisfies required. Either they are equal or
// held extends required with a non-alphanumeric suffix or prefix, so
// "ISO 9001:2015" covers "ISO 9001" but "ISO 90011" does not.
func covers(held, required string) bool {
	if required == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(held[from:], required)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(required)
		if boundary(held, start-1) && boundary(held, end) {
			return true
		}
		from = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
