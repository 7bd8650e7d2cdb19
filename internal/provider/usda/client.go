package usda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.nal.usda.gov"

var (
	ErrMissingAPIKey = errors.New("missing USDA API key")
	ErrNotFound      = errors.New("usda food not found")
)

var searchDataTypes = []string{"Branded", "SR Legacy", "Survey (FNDDS)"}

// FDC nutrient ids mapped to per-100g nutriment keys.
var nutrientKeys = map[int]string{
	1008: "energy-kcal_100g",
	1062: "energy-kj_100g",
	1003: "proteins_100g",
	1005: "carbohydrates_100g",
	1004: "fat_100g",
	1079: "fiber_100g",
}

// Food is a FoodData Central search hit. Search results report nutrients per
// 100 g.
type Food struct {
	FDCID       int64
	Description string
	Brand       string
	GTINUPC     string
	ServingG    float64
	Nutriments  map[string]float64
}

type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) SearchFoods(ctx context.Context, query string, limit int) ([]Food, []byte, error) {
	if limit <= 0 {
		limit = 6
	}
	return c.search(ctx, map[string]any{
		"query":    strings.TrimSpace(query),
		"dataType": searchDataTypes,
		"pageSize": limit,
	})
}

// LookupBarcode searches branded foods for a GTIN/UPC and returns the exact
// match when present.
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (Food, []byte, error) {
	foods, body, err := c.search(ctx, map[string]any{
		"query":    barcode,
		"dataType": []string{"Branded"},
		"pageSize": 20,
	})
	if err != nil {
		return Food{}, body, err
	}
	for _, f := range foods {
		if strings.TrimSpace(f.GTINUPC) == barcode {
			return f, body, nil
		}
	}
	return Food{}, body, fmt.Errorf("barcode %q: %w", barcode, ErrNotFound)
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]Food, []byte, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal USDA search payload: %w", err)
	}

	u := fmt.Sprintf("%s/fdc/v1/foods/search?api_key=%s", baseURL, url.QueryEscape(c.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("create USDA request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute USDA request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read USDA response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, body, fmt.Errorf("USDA request failed with status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, body, fmt.Errorf("decode USDA response: %w", err)
	}
	out := make([]Food, 0, len(parsed.Foods))
	for _, f := range parsed.Foods {
		out = append(out, toFood(f))
	}
	return out, body, nil
}

func toFood(f usdaFood) Food {
	out := Food{
		FDCID:       f.FDCID,
		Description: strings.TrimSpace(f.Description),
		Brand:       strings.TrimSpace(f.BrandName),
		GTINUPC:     strings.TrimSpace(f.GTINUPC),
		Nutriments:  map[string]float64{},
	}
	if out.Brand == "" {
		out.Brand = strings.TrimSpace(f.BrandOwner)
	}
	if strings.EqualFold(strings.TrimSpace(f.ServingSizeUnit), "g") && f.ServingSize > 0 {
		out.ServingG = f.ServingSize
	}
	for _, n := range f.FoodNutrients {
		key, ok := nutrientKey(n)
		if !ok {
			continue
		}
		if _, seen := out.Nutriments[key]; seen {
			continue
		}
		out.Nutriments[key] = n.Value
	}
	return out
}

func nutrientKey(n usdaNutrient) (string, bool) {
	if key, ok := nutrientKeys[n.NutrientID]; ok {
		return key, true
	}
	name := strings.ToLower(strings.TrimSpace(n.NutrientName))
	unit := strings.ToLower(strings.TrimSpace(n.UnitName))
	switch name {
	case "energy":
		if unit == "kj" {
			return "energy-kj_100g", true
		}
		return "energy-kcal_100g", true
	case "protein":
		return "proteins_100g", true
	case "carbohydrate, by difference":
		return "carbohydrates_100g", true
	case "total lipid (fat)":
		return "fat_100g", true
	case "fiber, total dietary":
		return "fiber_100g", true
	}
	return "", false
}

type searchResponse struct {
	Foods []usdaFood `json:"foods"`
}

type usdaFood struct {
	FDCID           int64          `json:"fdcId"`
	Description     string         `json:"description"`
	BrandName       string         `json:"brandName"`
	BrandOwner      string         `json:"brandOwner"`
	GTINUPC         string         `json:"gtinUpc"`
	ServingSize     float64        `json:"servingSize"`
	ServingSizeUnit string         `json:"servingSizeUnit"`
	FoodNutrients   []usdaNutrient `json:"foodNutrients"`
}

type usdaNutrient struct {
	NutrientID   int     `json:"nutrientId"`
	NutrientName string  `json:"nutrientName"`
	UnitName     string  `json:"unitName"`
	Value        float64 `json:"value"`
}
