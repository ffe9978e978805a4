package indices

import (
	"regexp"
	"strings"
)

// gramsPerUnit maps the mass units that price series are quoted in to grams.
var gramsPerUnit = map[string]float64{
	"g":         1,
	"gram":      1,
	"grams":     1,
	"kg":        1000,
	"kilogram":  1000,
	"kilograms": 1000,
	"t":         1_000_000,
	"ton":       1_000_000,
	"tons":      1_000_000,
	"tonne":     1_000_000,
	"tonnes":    1_000_000,
}

var bracketUnit = regexp.MustCompile(`\[([^\]]+)\]`)

// GramsPerUnit returns how many grams one unit weighs, or false when unit
// is not a mass unit (hours, MWh, ...).
func GramsPerUnit(unit string) (float64, bool) {
	g, ok := gramsPerUnit[strings.ToLower(strings.TrimSpace(unit))]
	return g, ok
}

// IsMassUnit reports whether unit is one of the known mass units.
func IsMassUnit(unit string) bool {
	_, ok := GramsPerUnit(unit)
	return ok
}

// UnitFromName derives the quantity unit from an index name of the form
// "Aluminium [€/t] (Finanzen.net)": the part after the slash inside the
// brackets, or the whole bracket content when there is no slash.
func UnitFromName(name string) string {
	m := bracketUnit.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	bracket := m[1]
	if i := strings.Index(bracket, "/"); i >= 0 && i < len(bracket)-1 {
		bracket = bracket[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(bracket))
}
