package service

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	massVolumeRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(g|gram|grams|ml|milliliter|milliliters)\b`)
	informalRe   = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(scoop|scoops|serving|servings|slice|slices|cup|cups)\b`)
	multiplierRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*x\b`)
)

// NormalizePhrase canonicalizes a user phrase for alias lookup. It is
// idempotent.
func NormalizePhrase(s string) string {
	s = strings.ToLower(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

type QtyUnit struct {
	Qty  float64
	Unit string
}

// TryParseQtyUnit extracts a leading quantity hint such as "200 g", "2 scoops"
// or "2x". Mass and volume units win over informal units, which win over a
// bare multiplier.
func TryParseQtyUnit(s string) (QtyUnit, bool) {
	t := strings.ToLower(s)
	if m := massVolumeRe.FindStringSubmatch(t); m != nil {
		return qtyUnit(m[1], strings.TrimSuffix(m[2], "s"))
	}
	if m := informalRe.FindStringSubmatch(t); m != nil {
		return qtyUnit(m[1], strings.TrimSuffix(m[2], "s"))
	}
	if m := multiplierRe.FindStringSubmatch(t); m != nil {
		return qtyUnit(m[1], "x")
	}
	return QtyUnit{}, false
}

func qtyUnit(rawQty, unit string) (QtyUnit, bool) {
	qty, err := strconv.ParseFloat(rawQty, 64)
	if err != nil {
		return QtyUnit{}, false
	}
	return QtyUnit{Qty: qty, Unit: unit}, true
}

// IsMassOrVolume reports whether the unit can be read directly as grams.
func (q QtyUnit) IsMassOrVolume() bool {
	switch q.Unit {
	case "g", "gram", "ml", "milliliter":
		return true
	default:
		return false
	}
}
