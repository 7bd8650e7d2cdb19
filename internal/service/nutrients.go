package service

import (
	"math"

	"github.com/saadjs/nutrilog/internal/model"
)

const (
	kcalPerKJ = 0.239006

	NoteMacrosUnavailable = "Macros unavailable from source"

	nutrientEnergyKcal = "energy-kcal"
	nutrientProtein    = "proteins"
	nutrientCarbs      = "carbohydrates"
	nutrientFat        = "fat"
	nutrientFiber      = "fiber"

	servingSizeKey = "serving_size_g"
)

// kilojoule energy keys; OFF reports the bare "energy" field in kJ.
var energyKJKeys = []string{"energy-kj", "energy"}

// ProjectMacros scales a sparse nutrient record to the given grams. Per-100g
// values win; per-serving values are used when a serving size is known
// (servingG, else the record's serving_size_g). Missing data stays nil.
func ProjectMacros(n model.Nutriments, grams float64, servingG *float64) model.Macros {
	serving := servingSize(n, servingG)
	var out model.Macros
	if kcal, ok := projectEnergy(n, grams, serving); ok {
		v := int(math.Round(kcal))
		out.Kcal = &v
	}
	out.ProteinG = projectRounded(n, nutrientProtein, grams, serving)
	out.CarbsG = projectRounded(n, nutrientCarbs, grams, serving)
	out.FatG = projectRounded(n, nutrientFat, grams, serving)
	out.FiberG = projectRounded(n, nutrientFiber, grams, serving)
	return out
}

// HasEnergy reports whether any energy value (kcal or kJ) is present.
func HasEnergy(n model.Nutriments) bool {
	if hasNutrient(n, nutrientEnergyKcal) {
		return true
	}
	for _, key := range energyKJKeys {
		if hasNutrient(n, key) {
			return true
		}
	}
	return false
}

func hasNutrient(n model.Nutriments, key string) bool {
	if _, ok := n[key+"_100g"]; ok {
		return true
	}
	_, ok := n[key+"_serving"]
	return ok
}

func projectEnergy(n model.Nutriments, grams, serving float64) (float64, bool) {
	if v, ok := projectNutrient(n, nutrientEnergyKcal, grams, serving); ok {
		return v, true
	}
	for _, key := range energyKJKeys {
		if v, ok := projectNutrient(n, key, grams, serving); ok {
			return v * kcalPerKJ, true
		}
	}
	return 0, false
}

func projectRounded(n model.Nutriments, key string, grams, serving float64) *float64 {
	v, ok := projectNutrient(n, key, grams, serving)
	if !ok {
		return nil
	}
	r := round1(v)
	return &r
}

func projectNutrient(n model.Nutriments, key string, grams, serving float64) (float64, bool) {
	if v, ok := n[key+"_100g"]; ok {
		return v * grams / 100, true
	}
	if v, ok := n[key+"_serving"]; ok && serving > 0 {
		return v * grams / serving, true
	}
	return 0, false
}

func servingSize(n model.Nutriments, explicit *float64) float64 {
	if explicit != nil && *explicit > 0 {
		return *explicit
	}
	if v, ok := n[servingSizeKey]; ok && v > 0 {
		return v
	}
	return 0
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// macroNote returns the item note for projected macros, prefixed by base.
func macroNote(base string, m model.Macros) string {
	if m.Kcal != nil {
		return base
	}
	if base == "" {
		return NoteMacrosUnavailable
	}
	return base + "; " + NoteMacrosUnavailable
}

// perHundredFromTotals derives a per-100g record from absolute amounts, used
// to store manually entered items as reusable products.
func perHundredFromTotals(grams float64, kcal, protein, carbs, fat, fiber float64) model.Nutriments {
	if grams <= 0 {
		return model.Nutriments{}
	}
	f := 100 / grams
	return model.Nutriments{
		nutrientEnergyKcal + "_100g": kcal * f,
		nutrientProtein + "_100g":    protein * f,
		nutrientCarbs + "_100g":      carbs * f,
		nutrientFat + "_100g":        fat * f,
		nutrientFiber + "_100g":      fiber * f,
	}
}
