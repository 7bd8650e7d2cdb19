package service

import (
	"testing"

	"github.com/saadjs/nutrilog/internal/model"
)

func TestProjectMacrosPer100g(t *testing.T) {
	t.Parallel()

	m := ProjectMacros(model.Nutriments{"energy-kcal_100g": 60, "proteins_100g": 10}, 150, nil)
	if m.Kcal == nil || *m.Kcal != 90 {
		t.Fatalf("expected kcal 90, got %v", m.Kcal)
	}
	if m.ProteinG == nil || *m.ProteinG != 15.0 {
		t.Fatalf("expected protein 15.0, got %v", m.ProteinG)
	}
	if m.CarbsG != nil || m.FatG != nil || m.FiberG != nil {
		t.Fatalf("expected absent macros to stay nil, got %+v", m)
	}
}

func TestProjectMacrosServingFallback(t *testing.T) {
	t.Parallel()

	n := model.Nutriments{"proteins_serving": 20}
	serving := 50.0
	m := ProjectMacros(n, 100, &serving)
	if m.ProteinG == nil || *m.ProteinG != 40.0 {
		t.Fatalf("expected protein 40.0, got %v", m.ProteinG)
	}

	m = ProjectMacros(n, 100, nil)
	if m.ProteinG != nil {
		t.Fatalf("expected nil protein without serving size, got %v", *m.ProteinG)
	}

	m = ProjectMacros(model.Nutriments{"proteins_serving": 20, "serving_size_g": 25}, 100, nil)
	if m.ProteinG == nil || *m.ProteinG != 80.0 {
		t.Fatalf("expected embedded serving size fallback 80.0, got %v", m.ProteinG)
	}
}

func TestProjectMacrosPer100gWinsOverServing(t *testing.T) {
	t.Parallel()

	serving := 30.0
	m := ProjectMacros(model.Nutriments{"fat_100g": 5, "fat_serving": 100}, 200, &serving)
	if m.FatG == nil || *m.FatG != 10.0 {
		t.Fatalf("expected per-100g fat 10.0, got %v", m.FatG)
	}
}

func TestProjectMacrosKilojouleEnergy(t *testing.T) {
	t.Parallel()

	m := ProjectMacros(model.Nutriments{"energy_100g": 1000}, 100, nil)
	if m.Kcal == nil || *m.Kcal != 239 {
		t.Fatalf("expected 239 kcal from 1000 kJ, got %v", m.Kcal)
	}
	if !HasEnergy(model.Nutriments{"energy-kj_serving": 400}) {
		t.Fatalf("expected kJ serving value to count as energy")
	}
}

func TestProjectMacrosRounding(t *testing.T) {
	t.Parallel()

	m := ProjectMacros(model.Nutriments{"energy-kcal_100g": 333, "carbohydrates_100g": 12.34}, 33, nil)
	if m.Kcal == nil || *m.Kcal != 110 {
		t.Fatalf("expected rounded kcal 110, got %v", m.Kcal)
	}
	if m.CarbsG == nil || *m.CarbsG != 4.1 {
		t.Fatalf("expected carbs rounded to 4.1, got %v", m.CarbsG)
	}
}

func TestMacroNote(t *testing.T) {
	t.Parallel()

	if got := macroNote("", model.Macros{}); got != NoteMacrosUnavailable {
		t.Fatalf("unexpected note %q", got)
	}
	kcal := 10
	if got := macroNote("alias", model.Macros{Kcal: &kcal}); got != "alias" {
		t.Fatalf("unexpected note %q", got)
	}
}
