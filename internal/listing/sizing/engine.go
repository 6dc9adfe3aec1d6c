package sizing

import (
	"regexp"
	"strconv"
	"strings"

	"listing-workers/internal/models"
)

// letter sizes per target locale, keyed by the canonical letter size.
var letterAliases = map[string]map[string]string{
	"BE|fr": {"XS": "TP", "S": "P", "M": "M", "L": "G", "XL": "TG", "XXL": "TTG"},
	"US|en": usLetters,
	"CA|en": usLetters,
	"IE|en": usLetters,
}

var usLetters = map[string]string{
	"XS": "X-Small", "S": "Small", "M": "Medium", "L": "Large", "XL": "X-Large", "XXL": "XX-Large",
}

// canonicalLetters maps every known spelling back to its letter size.
var canonicalLetters = func() map[string]string {
	out := map[string]string{}
	for _, aliases := range letterAliases {
		for letter, alias := range aliases {
			out[strings.ToUpper(alias)] = letter
			out[letter] = letter
		}
	}
	return out
}()

// Engine converts sizes and measurements. It holds no mutable state.
type Engine struct {
	tables      *Tables
	inchCountry map[string]bool
}

func NewEngine(tables *Tables) *Engine {
	if tables == nil {
		tables = NewTables()
	}
	return &Engine{
		tables:      tables,
		inchCountry: map[string]bool{"US": true},
	}
}

// UsesInches reports whether a country publishes measurements in inches.
func (e *Engine) UsesInches(country string) bool {
	return e.inchCountry[strings.ToUpper(country)]
}

// ConvertSize converts a numeric or letter size. ok is false when nothing
// matched; callers then keep the source value.
func (e *Engine) ConvertSize(category models.Category, gender Gender, from, to models.Scope, value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}

	if num, err := parseNumber(v); err == nil {
		if t, ok := e.tables.Get(category, gender); ok {
			if out, ok := t.Convert(from.Country, to.Country, num); ok {
				return formatSize(out), true
			}
		}
	}

	letter, ok := canonicalLetters[strings.ToUpper(v)]
	if !ok {
		return "", false
	}
	if aliases, ok := letterAliases[strings.ToUpper(to.Country)+"|"+strings.ToLower(to.Lang)]; ok {
		return aliases[letter], true
	}
	return letter, true
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

func formatSize(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const number = `\d+(?:[.,]\d+)?`

var measureRe = regexp.MustCompile(`(` + number + `(?:\s*[xX×]\s*` + number + `)*)\s*((?i:cm|mm|inches|inch|in\b)|"|m\b)`)

var numberRe = regexp.MustCompile(number)

// startsWithNumber matches the rest of "2 in 1": a bare "in" there is a word.
var startsWithNumber = regexp.MustCompile(`^\s*\d`)

type measure struct {
	text    string
	numbers []float64
	unit    string
}

func (m measure) imperial() bool {
	return m.unit == "inch" || m.unit == "inches" || m.unit == "in" || m.unit == `"`
}

func parseMeasures(s string) []measure {
	var out []measure
	for _, idx := range measureRe.FindAllStringSubmatchIndex(s, -1) {
		unit := strings.ToLower(s[idx[4]:idx[5]])
		if unit == "in" && startsWithNumber.MatchString(s[idx[1]:]) {
			continue
		}
		m := measure{text: s[idx[0]:idx[1]], unit: unit}
		for _, n := range numberRe.FindAllString(s[idx[2]:idx[3]], -1) {
			f, _ := parseNumber(n)
			m.numbers = append(m.numbers, f)
		}
		out = append(out, m)
	}
	return out
}

// ConvertUnit converts a measurement string for a target country. An
// occurrence already in the target unit system is returned unmodified;
// otherwise the first occurrence is converted, keeping "a x b" chains.
func (e *Engine) ConvertUnit(value, toCountry string) (string, bool) {
	measures := parseMeasures(value)
	if len(measures) == 0 {
		return "", false
	}
	wantInch := e.UsesInches(toCountry)
	for _, m := range measures {
		if m.imperial() == wantInch {
			return strings.TrimSpace(m.text), true
		}
	}

	m := measures[0]
	parts := make([]string, len(m.numbers))
	for i, n := range m.numbers {
		if wantInch {
			parts[i] = strconv.FormatFloat(toCentimeters(n, m.unit)/2.54, 'f', 2, 64)
		} else {
			parts[i] = strconv.FormatFloat(n*2.54, 'f', 1, 64)
		}
	}
	if wantInch {
		return strings.Join(parts, " x ") + `"`, true
	}
	return strings.Join(parts, " x ") + " cm", true
}

func toCentimeters(n float64, unit string) float64 {
	switch unit {
	case "mm":
		return n / 10
	case "m":
		return n * 100
	}
	return n
}
