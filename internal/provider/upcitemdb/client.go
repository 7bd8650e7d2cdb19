package upcitemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.upcitemdb.com"

var (
	ErrNotFound = errors.New("upcitemdb product not found")

	sizeGramsRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(g|gram|grams)\b`)
	numberRe    = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Food is a UPC lookup result. Nutrition facts on UPC labels are per serving,
// so Nutriments carries *_serving keys only.
type Food struct {
	Title      string
	Brand      string
	ServingG   float64
	Nutriments map[string]float64
}

type Client struct {
	BaseURL    string
	APIKey     string
	APIKeyType string
	HTTPClient *http.Client
}

func (c *Client) LookupBarcode(ctx context.Context, barcode string) (Food, []byte, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	path := "/prod/trial/lookup"
	if strings.TrimSpace(c.APIKey) != "" {
		path = "/prod/v1/lookup"
	}
	u := fmt.Sprintf("%s%s?upc=%s", base, path, url.QueryEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Food{}, nil, fmt.Errorf("create upcitemdb request: %w", err)
	}
	if strings.TrimSpace(c.APIKey) != "" {
		keyType := strings.TrimSpace(c.APIKeyType)
		if keyType == "" {
			keyType = "3scale"
		}
		req.Header.Set("key_type", keyType)
		req.Header.Set("user_key", strings.TrimSpace(c.APIKey))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Food{}, nil, fmt.Errorf("execute upcitemdb request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Food{}, nil, fmt.Errorf("read upcitemdb response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Food{}, body, fmt.Errorf("upcitemdb request failed with status %d", resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Food{}, body, fmt.Errorf("decode upcitemdb response: %w", err)
	}
	if strings.ToUpper(parsed.Code) != "OK" || len(parsed.Items) == 0 {
		return Food{}, body, fmt.Errorf("barcode %q: %w", barcode, ErrNotFound)
	}
	it := parsed.Items[0]
	return Food{
		Title:      strings.TrimSpace(it.Title),
		Brand:      strings.TrimSpace(it.Brand),
		ServingG:   parseServingGrams(it.Size),
		Nutriments: parseNutritionFacts(it.NutritionFacts),
	}, body, nil
}

func parseServingGrams(size string) float64 {
	m := sizeGramsRe.FindStringSubmatch(size)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func parseNutritionFacts(facts map[string]any) map[string]float64 {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string]float64{}
	for _, k := range keys {
		target := nutrimentKey(strings.ToLower(k))
		if target == "" {
			continue
		}
		if _, seen := out[target]; seen {
			continue
		}
		raw := numberRe.FindString(fmt.Sprintf("%v", facts[k]))
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			out[target] = v
		}
	}
	return out
}

func nutrimentKey(label string) string {
	switch {
	case strings.Contains(label, "calorie") && !strings.Contains(label, "fat"):
		return "energy-kcal_serving"
	case strings.Contains(label, "protein"):
		return "proteins_serving"
	case strings.Contains(label, "carbohydrate"):
		return "carbohydrates_serving"
	case strings.Contains(label, "fiber"):
		return "fiber_serving"
	case strings.Contains(label, "fat") && !strings.Contains(label, "saturated") && !strings.Contains(label, "trans") && !strings.Contains(label, "calorie"):
		return "fat_serving"
	default:
		return ""
	}
}

type response struct {
	Code  string `json:"code"`
	Items []item `json:"items"`
}

type item struct {
	Title          string         `json:"title"`
	Brand          string         `json:"brand"`
	Size           string         `json:"size"`
	NutritionFacts map[string]any `json:"nutrition_facts"`
}
