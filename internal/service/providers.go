package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/saadjs/nutrilog/internal/model"
	"github.com/saadjs/nutrilog/internal/provider/nutritionix"
	"github.com/saadjs/nutrilog/internal/provider/openfoodfacts"
	"github.com/saadjs/nutrilog/internal/provider/upcitemdb"
	"github.com/saadjs/nutrilog/internal/provider/usda"
)

const (
	ProviderOpenFoodFacts = "off"
	ProviderUSDA          = "fdc"
	ProviderNutritionix   = "nutritionix"
	ProviderUPCItemDB     = "upcitemdb"
)

var DefaultProviderOrder = []string{ProviderOpenFoodFacts, ProviderNutritionix, ProviderUSDA}

// Provider searches a food database by free text.
type Provider interface {
	Name() string
	SearchFoods(ctx context.Context, query string, limit int) ([]model.Product, error)
}

// BarcodeProvider resolves a single product by barcode.
type BarcodeProvider interface {
	Name() string
	LookupBarcode(ctx context.Context, barcode string) (model.Product, error)
}

type ProviderOptions struct {
	Order             []string
	USDAAPIKey        string
	NutritionixAppID  string
	NutritionixAPIKey string
	UPCItemDBAPIKey   string
	UPCItemDBKeyType  string
	HTTPClient        *http.Client
}

// NewSearchProviders builds text-search providers in the configured order.
// Providers that need credentials are skipped when none are configured.
func NewSearchProviders(opts ProviderOptions) ([]Provider, error) {
	order := opts.Order
	if len(order) == 0 {
		order = DefaultProviderOrder
	}
	out := make([]Provider, 0, len(order))
	seen := map[string]bool{}
	for _, raw := range order {
		name := normalizeProvider(raw)
		if seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case ProviderOpenFoodFacts:
			out = append(out, &openFoodFactsAdapter{client: &openfoodfacts.Client{HTTPClient: opts.HTTPClient}})
		case ProviderUSDA:
			if strings.TrimSpace(opts.USDAAPIKey) == "" {
				continue
			}
			out = append(out, &usdaAdapter{client: &usda.Client{APIKey: opts.USDAAPIKey, HTTPClient: opts.HTTPClient}})
		case ProviderNutritionix:
			if strings.TrimSpace(opts.NutritionixAppID) == "" || strings.TrimSpace(opts.NutritionixAPIKey) == "" {
				continue
			}
			out = append(out, &nutritionixAdapter{client: &nutritionix.Client{
				AppID:      opts.NutritionixAppID,
				APIKey:     opts.NutritionixAPIKey,
				HTTPClient: opts.HTTPClient,
			}})
		default:
			return nil, fmt.Errorf("unsupported search provider %q", raw)
		}
	}
	return out, nil
}

// NewBarcodeProviders returns the barcode lookup chain: Open Food Facts, then
// USDA branded foods when a key is configured, then UPCitemdb.
func NewBarcodeProviders(opts ProviderOptions) []BarcodeProvider {
	out := []BarcodeProvider{
		&openFoodFactsAdapter{client: &openfoodfacts.Client{HTTPClient: opts.HTTPClient}},
	}
	if strings.TrimSpace(opts.USDAAPIKey) != "" {
		out = append(out, &usdaAdapter{client: &usda.Client{APIKey: opts.USDAAPIKey, HTTPClient: opts.HTTPClient}})
	}
	return append(out, &upcItemDBAdapter{client: &upcitemdb.Client{
		APIKey:     opts.UPCItemDBAPIKey,
		APIKeyType: opts.UPCItemDBKeyType,
		HTTPClient: opts.HTTPClient,
	}})
}

func normalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "openfoodfacts", "open_food_facts":
		return ProviderOpenFoodFacts
	case "usda":
		return ProviderUSDA
	case "nutrix", "nix":
		return ProviderNutritionix
	case "upc":
		return ProviderUPCItemDB
	default:
		return p
	}
}

type openFoodFactsAdapter struct {
	client *openfoodfacts.Client
}

func (a *openFoodFactsAdapter) Name() string { return ProviderOpenFoodFacts }

func (a *openFoodFactsAdapter) SearchFoods(ctx context.Context, query string, limit int) ([]model.Product, error) {
	foods, _, err := a.client.SearchFoods(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Product, 0, len(foods))
	for _, f := range foods {
		out = append(out, offProduct(f))
	}
	return out, nil
}

func (a *openFoodFactsAdapter) LookupBarcode(ctx context.Context, barcode string) (model.Product, error) {
	food, _, err := a.client.LookupBarcode(ctx, barcode)
	if errors.Is(err, openfoodfacts.ErrNotFound) {
		return model.Product{}, fmt.Errorf("openfoodfacts barcode %s: %w", barcode, ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, err
	}
	return offProduct(food), nil
}

func offProduct(f openfoodfacts.Food) model.Product {
	return model.Product{
		ID:              "off:" + f.Code,
		Source:          "off",
		SourceID:        f.Code,
		Name:            f.Name,
		Brand:           f.Brand,
		Barcode:         f.Code,
		DefaultServingG: positiveOrNil(f.ServingG),
		Nutriments:      f.Nutriments,
		Attribution:     "Open Food Facts (ODbL)",
	}
}

type usdaAdapter struct {
	client *usda.Client
}

func (a *usdaAdapter) Name() string { return ProviderUSDA }

func (a *usdaAdapter) SearchFoods(ctx context.Context, query string, limit int) ([]model.Product, error) {
	foods, _, err := a.client.SearchFoods(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Product, 0, len(foods))
	for _, f := range foods {
		out = append(out, usdaProduct(f))
	}
	return out, nil
}

func (a *usdaAdapter) LookupBarcode(ctx context.Context, barcode string) (model.Product, error) {
	food, _, err := a.client.LookupBarcode(ctx, barcode)
	if errors.Is(err, usda.ErrNotFound) {
		return model.Product{}, fmt.Errorf("usda barcode %s: %w", barcode, ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, err
	}
	return usdaProduct(food), nil
}

func usdaProduct(f usda.Food) model.Product {
	id := strconv.FormatInt(f.FDCID, 10)
	return model.Product{
		ID:              "fdc:" + id,
		Source:          "fdc",
		SourceID:        id,
		Name:            firstNonEmpty(f.Description, "Unknown"),
		Brand:           f.Brand,
		Barcode:         f.GTINUPC,
		DefaultServingG: positiveOrNil(f.ServingG),
		Nutriments:      f.Nutriments,
		Attribution:     "USDA FDC (CC0)",
	}
}

type nutritionixAdapter struct {
	client *nutritionix.Client
}

func (a *nutritionixAdapter) Name() string { return ProviderNutritionix }

func (a *nutritionixAdapter) SearchFoods(ctx context.Context, query string, limit int) ([]model.Product, error) {
	foods, _, err := a.client.SearchFoods(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Product, 0, len(foods))
	for _, f := range foods {
		out = append(out, model.Product{
			ID:              "nutrix:" + f.ItemID,
			Source:          "nutrix",
			SourceID:        f.ItemID,
			Name:            f.Name,
			Brand:           f.Brand,
			DefaultServingG: positiveOrNil(f.ServingG),
			Nutriments:      f.Nutriments,
			Attribution:     "Nutritionix",
		})
	}
	return out, nil
}

type upcItemDBAdapter struct {
	client *upcitemdb.Client
}

func (a *upcItemDBAdapter) Name() string { return ProviderUPCItemDB }

func (a *upcItemDBAdapter) LookupBarcode(ctx context.Context, barcode string) (model.Product, error) {
	food, _, err := a.client.LookupBarcode(ctx, barcode)
	if errors.Is(err, upcitemdb.ErrNotFound) {
		return model.Product{}, fmt.Errorf("upcitemdb barcode %s: %w", barcode, ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, err
	}
	n := model.Nutriments(food.Nutriments)
	if n == nil {
		n = model.Nutriments{}
	}
	if food.ServingG > 0 {
		n[servingSizeKey] = food.ServingG
	}
	return model.Product{
		ID:              "upc:" + barcode,
		Source:          "upc",
		SourceID:        barcode,
		Name:            firstNonEmpty(food.Title, "Unknown product"),
		Brand:           food.Brand,
		Barcode:         barcode,
		DefaultServingG: positiveOrNil(food.ServingG),
		Nutriments:      n,
		Attribution:     "UPCitemdb",
	}, nil
}

func positiveOrNil(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
