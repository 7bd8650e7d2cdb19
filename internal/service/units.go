package service

import (
	"math"
	"strings"
)

type unitKind string

const (
	unitKindMass   unitKind = "mass"
	unitKindVolume unitKind = "volume"
)

type unitDef struct {
	kind       unitKind
	toBaseUnit float64
}

var unitTable = map[string]unitDef{
	// mass (base = g)
	"mg":    {kind: unitKindMass, toBaseUnit: 0.001},
	"g":     {kind: unitKindMass, toBaseUnit: 1},
	"gram":  {kind: unitKindMass, toBaseUnit: 1},
	"grams": {kind: unitKindMass, toBaseUnit: 1},
	"kg":    {kind: unitKindMass, toBaseUnit: 1000},
	"oz":    {kind: unitKindMass, toBaseUnit: 28.349523125},
	"lb":    {kind: unitKindMass, toBaseUnit: 453.59237},
	"lbs": {
		kind:       unitKindMass,
		toBaseUnit: 453.59237,
	},

	// volume (base = ml)
	"ml":          {kind: unitKindVolume, toBaseUnit: 1},
	"milliliter":  {kind: unitKindVolume, toBaseUnit: 1},
	"milliliters": {kind: unitKindVolume, toBaseUnit: 1},
	"l":           {kind: unitKindVolume, toBaseUnit: 1000},
	"tsp":         {kind: unitKindVolume, toBaseUnit: 4.92892159375},
	"tbsp":        {kind: unitKindVolume, toBaseUnit: 14.78676478125},
	"cup":         {kind: unitKindVolume, toBaseUnit: 236.5882365},
	"fl-oz":       {kind: unitKindVolume, toBaseUnit: 29.5735295625},
}

// SuggestGrams converts a quantity hint into an approximate gram amount.
// Volumes assume the density of water. Informal units like "scoop" have no
// fixed weight and report false.
func SuggestGrams(qty float64, unit string) (float64, bool) {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0, false
	}
	def, ok := resolveUnit(unit)
	if !ok {
		return 0, false
	}
	return normalizeGrams(qty * def.toBaseUnit), true
}

// metricUnits read as grams without guessing: metric mass, and millilitres
// under the one-gram-per-ml rule.
var metricUnits = map[string]bool{
	"mg": true, "g": true, "gram": true, "grams": true, "kg": true,
	"ml": true, "milliliter": true, "milliliters": true, "l": true,
}

// exactGrams converts qty only for metric units. Cups, spoons and imperial
// units are left to the user, with SuggestGrams as the default.
func exactGrams(qty float64, unit string) (float64, bool) {
	if !metricUnits[strings.ToLower(strings.TrimSpace(unit))] {
		return 0, false
	}
	return SuggestGrams(qty, unit)
}

// normalizeGrams applies the interactive grams rule: whole grams, at least 1.
func normalizeGrams(v float64) float64 {
	return math.Max(1, math.Round(v))
}

func resolveUnit(unit string) (unitDef, bool) {
	u := strings.ToLower(strings.TrimSpace(unit))
	def, ok := unitTable[u]
	return def, ok
}
