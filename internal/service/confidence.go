package service

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/saadjs/nutrilog/internal/model"
)

const (
	nameWeight         = 0.55
	brandWeight        = 0.15
	completenessWeight = 0.30
)

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// SourceBias maps a provider name to an additive score adjustment.
type SourceBias map[string]float64

func DefaultSourceBias() SourceBias {
	return SourceBias{
		ProviderOpenFoodFacts: 0,
		ProviderNutritionix:   -0.05,
		ProviderUSDA:          0.05,
	}
}

type ConfidenceScore struct {
	Score      float64  `json:"score"`
	IsVerified bool     `json:"is_verified"`
	Reasons    []string `json:"reasons,omitempty"`
}

// ScoreCandidate rates how well a product matches a parsed food descriptor.
// The result is always within [0, 1].
func ScoreCandidate(d model.FoodDescriptor, p model.Product, bias float64) ConfidenceScore {
	if math.IsNaN(bias) {
		bias = 0
	}
	nameScore := jaccard(tokenize(joinNonEmpty(d.Brand, d.Name)), tokenize(joinNonEmpty(p.Brand, p.Name)))
	brandScore := 0.0
	if strings.TrimSpace(d.Brand) != "" {
		brandScore = jaccard(tokenize(d.Brand), tokenize(p.Brand))
	}
	completeness := labelCompleteness(p.Nutriments)

	score := clamp01(nameWeight*nameScore + brandWeight*brandScore + completenessWeight*completeness + bias)
	return ConfidenceScore{
		Score:      score,
		IsVerified: score >= AutoAcceptThreshold,
		Reasons: []string{
			fmt.Sprintf("name_match=%.2f", nameScore),
			fmt.Sprintf("brand_match=%.2f", brandScore),
			fmt.Sprintf("completeness=%.2f", completeness),
			fmt.Sprintf("source_bias=%+.2f", bias),
			fmt.Sprintf("score=%.2f", score),
		},
	}
}

func labelCompleteness(n model.Nutriments) float64 {
	have := 0
	if HasEnergy(n) {
		have++
	}
	for _, key := range []string{nutrientProtein, nutrientCarbs, nutrientFat} {
		if hasNutrient(n, key) {
			have++
		}
	}
	return float64(have) / 4
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	union := map[string]bool{}
	inA := map[string]bool{}
	for _, t := range a {
		inA[t] = true
		union[t] = true
	}
	inter := 0
	for _, t := range b {
		if inA[t] {
			inter++
		}
		union[t] = true
	}
	return float64(inter) / float64(len(union))
}

// tokenize returns the sorted, de-duplicated lowercase alphanumeric tokens of s.
func tokenize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	s = tokenSplitRe.ReplaceAllString(s, " ")
	parts := strings.Fields(s)
	seen := map[string]bool{}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
