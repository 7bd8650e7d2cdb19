package nutritionix

import (
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

const defaultBaseURL = "https://trackapi.nutritionix.com"

var ErrMissingCredentials = errors.New("missing Nutritionix app id or key")

// Food is a branded instant-search hit. Nutritionix reports nutrients per
// serving; ServingG is the serving weight when known.
type Food struct {
	ItemID     string
	Name       string
	Brand      string
	ServingG   float64
	Nutriments map[string]float64
}

type Client struct {
	AppID      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) SearchFoods(ctx context.Context, query string, limit int) ([]Food, []byte, error) {
	if strings.TrimSpace(c.AppID) == "" || strings.TrimSpace(c.APIKey) == "" {
		return nil, nil, ErrMissingCredentials
	}
	if limit <= 0 {
		limit = 6
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}

	params := url.Values{}
	params.Set("query", strings.TrimSpace(query))
	params.Set("detailed", "true")
	params.Set("self", "true")
	params.Set("nix_item_id", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v2/search/instant?"+params.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create nutritionix request: %w", err)
	}
	req.Header.Set("x-app-id", strings.TrimSpace(c.AppID))
	req.Header.Set("x-app-key", strings.TrimSpace(c.APIKey))
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute nutritionix request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read nutritionix response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, body, fmt.Errorf("nutritionix request failed with status %d", resp.StatusCode)
	}

	var parsed instantResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, body, fmt.Errorf("decode nutritionix response: %w", err)
	}
	out := make([]Food, 0, limit)
	for _, b := range parsed.Branded {
		if len(out) == limit {
			break
		}
		out = append(out, toFood(b))
	}
	return out, body, nil
}

func toFood(b brandedItem) Food {
	id := firstNonEmpty(b.NixItemID, b.ItemID, b.FoodName)
	f := Food{
		ItemID:     id,
		Name:       firstNonEmpty(b.FoodName, "Unknown"),
		Brand:      strings.TrimSpace(b.BrandName),
		Nutriments: map[string]float64{},
	}
	if b.ServingWeightGrams != nil && *b.ServingWeightGrams > 0 {
		f.ServingG = *b.ServingWeightGrams
		f.Nutriments["serving_size_g"] = *b.ServingWeightGrams
	}
	set := func(key string, v *float64) {
		if v != nil {
			f.Nutriments[key] = *v
		}
	}
	set("energy-kcal_serving", b.Calories)
	set("proteins_serving", b.Protein)
	set("carbohydrates_serving", b.Carbs)
	set("fat_serving", b.Fat)
	set("fiber_serving", b.Fiber)
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type instantResponse struct {
	Branded []brandedItem `json:"branded"`
}

type brandedItem struct {
	FoodName           string   `json:"food_name"`
	BrandName          string   `json:"brand_name"`
	NixItemID          string   `json:"nix_item_id"`
	ItemID             string   `json:"item_id"`
	ServingWeightGrams *float64 `json:"serving_weight_grams"`
	Calories           *float64 `json:"nf_calories"`
	Protein            *float64 `json:"nf_protein"`
	Carbs              *float64 `json:"nf_total_carbohydrate"`
	Fat                *float64 `json:"nf_total_fat"`
	Fiber              *float64 `json:"nf_dietary_fiber"`
}
