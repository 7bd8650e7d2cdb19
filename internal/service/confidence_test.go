package service

import (
	"math"
	"testing"

	"github.com/saadjs/nutrilog/internal/model"
)

func TestScoreCandidateExactMatchIsVerified(t *testing.T) {
	d := model.FoodDescriptor{Name: "Greek Yogurt", Brand: "Fage"}
	p := model.Product{
		Brand: "Fage",
		Name:  "Greek yogurt",
		Nutriments: model.Nutriments{
			"energy-kcal_100g":   97,
			"proteins_100g":      9,
			"carbohydrates_100g": 4,
			"fat_100g":           5,
		},
	}
	out := ScoreCandidate(d, p, 0)
	if math.Abs(out.Score-1) > 1e-9 {
		t.Fatalf("expected score 1 for exact complete match, got %.3f", out.Score)
	}
	if !out.IsVerified {
		t.Fatalf("expected exact match to be verified")
	}
	if len(out.Reasons) == 0 {
		t.Fatalf("expected scoring reasons")
	}
}

func TestScoreCandidateWithoutBrandIgnoresBrandScore(t *testing.T) {
	d := model.FoodDescriptor{Name: "skyr"}
	p := model.Product{Brand: "Siggi's", Name: "Skyr", Nutriments: model.Nutriments{"energy-kcal_100g": 60}}
	out := ScoreCandidate(d, p, 0)
	// name: {skyr} vs {s, siggi, skyr} = 1/3; completeness 1/4
	want := 0.55/3 + 0.30*0.25
	if math.Abs(out.Score-want) > 1e-9 {
		t.Fatalf("expected %.4f, got %.4f", want, out.Score)
	}
}

func TestScoreCandidateAlwaysWithinUnitInterval(t *testing.T) {
	descriptors := []model.FoodDescriptor{
		{},
		{Name: "skyr"},
		{Name: "protein shake", Brand: "Optimum Nutrition"},
		{Name: "!!!", Brand: "???"},
	}
	products := []model.Product{
		{},
		{Name: "Skyr", Nutriments: model.Nutriments{"energy-kcal_100g": 60, "proteins_100g": 10, "carbohydrates_100g": 4, "fat_100g": 0.2}},
		{Brand: "Optimum Nutrition", Name: "Protein Shake", Nutriments: model.Nutriments{"energy_serving": 500}},
	}
	for _, bias := range []float64{-2, -0.05, 0, 0.05, 2, math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, d := range descriptors {
			for _, p := range products {
				s := ScoreCandidate(d, p, bias).Score
				if s < 0 || s > 1 {
					t.Fatalf("score %.3f outside [0,1] for %+v / %+v bias %.2f", s, d, p, bias)
				}
			}
		}
	}
}

func TestScoreCandidateDeterministic(t *testing.T) {
	d := model.FoodDescriptor{Name: "oat milk", Brand: "Oatly"}
	p := model.Product{Brand: "Oatly", Name: "Oat Drink Barista", Nutriments: model.Nutriments{"energy-kcal_100g": 59}}
	a := ScoreCandidate(d, p, 0.05)
	b := ScoreCandidate(d, p, 0.05)
	if a.Score != b.Score {
		t.Fatalf("expected deterministic score, got %.4f and %.4f", a.Score, b.Score)
	}
}

func TestJaccardEmptySetIsZero(t *testing.T) {
	if got := jaccard(nil, []string{"a"}); got != 0 {
		t.Fatalf("expected 0 for empty set, got %.2f", got)
	}
	if got := jaccard([]string{"a", "b"}, []string{"b", "c"}); math.Abs(got-1.0/3) > 1e-9 {
		t.Fatalf("expected 1/3, got %.4f", got)
	}
}

func TestTokenizeSplitsOnNonAlphanumerics(t *testing.T) {
	got := tokenize("Ben & Jerry's  Cookie-Dough")
	want := []string{"ben", "cookie", "dough", "jerry", "s"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
