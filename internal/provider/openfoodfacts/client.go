package openfoodfacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://world.openfoodfacts.org"
	userAgent      = "nutrilog/1.0 (+https://github.com/saadjs/nutrilog)"
	searchFields   = "code,product_name,generic_name,brands,brand_owner,nutriments,serving_size,serving_quantity,serving_quantity_unit"
)

var (
	ErrNotFound = errors.New("openfoodfacts product not found")

	servingGramsRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*g\b`)
)

// Food is a product as reported by Open Food Facts. Nutriments keeps the
// numeric *_100g and *_serving fields verbatim.
type Food struct {
	Code       string
	Name       string
	Brand      string
	ServingG   float64
	Nutriments map[string]float64
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) LookupBarcode(ctx context.Context, barcode string) (Food, []byte, error) {
	u := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL(), url.PathEscape(barcode))
	body, err := c.get(ctx, u)
	if err != nil {
		return Food{}, body, err
	}

	var parsed offResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Food{}, body, fmt.Errorf("decode openfoodfacts response: %w", err)
	}
	if parsed.Status != 1 {
		return Food{}, body, fmt.Errorf("barcode %q: %w", barcode, ErrNotFound)
	}
	food := toFood(parsed.Product)
	if food.Code == "" {
		food.Code = barcode
	}
	return food, body, nil
}

func (c *Client) SearchFoods(ctx context.Context, query string, limit int) ([]Food, []byte, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("search_terms", strings.TrimSpace(query))
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("fields", searchFields)
	params.Set("sort_by", "unique_scans_n")
	params.Set("page_size", strconv.Itoa(limit))
	body, err := c.get(ctx, c.baseURL()+"/cgi/search.pl?"+params.Encode())
	if err != nil {
		return nil, body, err
	}

	var parsed offSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, body, fmt.Errorf("decode openfoodfacts search response: %w", err)
	}
	out := make([]Food, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		if strings.TrimSpace(p.Code) == "" {
			continue
		}
		out = append(out, toFood(p))
		if len(out) == limit {
			break
		}
	}
	return out, body, nil
}

func (c *Client) baseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create openfoodfacts request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute openfoodfacts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openfoodfacts response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return body, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("openfoodfacts request failed with status %d", resp.StatusCode)
	}
	return body, nil
}

func toFood(p offProduct) Food {
	name := firstNonEmpty(p.ProductName, p.GenericName, "Unknown product")
	return Food{
		Code:       strings.TrimSpace(p.Code),
		Name:       name,
		Brand:      firstNonEmpty(p.Brands, p.BrandOwner),
		ServingG:   parseServingGrams(p),
		Nutriments: parseNutriments(p.Nutriments),
	}
}

func parseNutriments(n map[string]any) map[string]float64 {
	out := map[string]float64{}
	for key, raw := range n {
		if !strings.HasSuffix(key, "_100g") && !strings.HasSuffix(key, "_serving") {
			continue
		}
		if v, ok := parseFloatAny(raw); ok {
			out[strings.ToLower(key)] = v
		}
	}
	return out
}

func parseFloatAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseServingGrams returns the serving weight in grams, or 0 when the
// serving is not expressed in grams.
func parseServingGrams(p offProduct) float64 {
	if qty, ok := parseFloatAny(p.ServingQuantity); ok && qty > 0 {
		unit := strings.ToLower(strings.TrimSpace(p.ServingQuantityUnit))
		if unit == "" || unit == "g" {
			return qty
		}
	}
	if m := servingGramsRe.FindStringSubmatch(p.ServingSize); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type offResponse struct {
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

type offProduct struct {
	Code                string         `json:"code"`
	ProductName         string         `json:"product_name"`
	GenericName         string         `json:"generic_name"`
	Brands              string         `json:"brands"`
	BrandOwner          string         `json:"brand_owner"`
	ServingSize         string         `json:"serving_size"`
	ServingQuantity     any            `json:"serving_quantity"`
	ServingQuantityUnit string         `json:"serving_quantity_unit"`
	Nutriments          map[string]any `json:"nutriments"`
}

type offSearchResponse struct {
	Products []offProduct `json:"products"`
}
