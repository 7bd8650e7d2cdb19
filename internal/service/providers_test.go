package service_test

import (
	"testing"

	"github.com/saadjs/nutrilog/internal/service"
)

func providerNames[T interface{ Name() string }](items []T) []string {
	out := make([]string, 0, len(items))
	for _, p := range items {
		out = append(out, p.Name())
	}
	return out
}

func TestNewSearchProvidersSkipsMissingCredentials(t *testing.T) {
	t.Parallel()

	got, err := service.NewSearchProviders(service.ProviderOptions{})
	if err != nil {
		t.Fatalf("new search providers: %v", err)
	}
	if names := providerNames(got); len(names) != 1 || names[0] != service.ProviderOpenFoodFacts {
		t.Fatalf("expected only open food facts without credentials, got %v", names)
	}

	got, err = service.NewSearchProviders(service.ProviderOptions{
		Order:             []string{"usda", "nutrix", "openfoodfacts", "off"},
		USDAAPIKey:        "k",
		NutritionixAppID:  "id",
		NutritionixAPIKey: "key",
	})
	if err != nil {
		t.Fatalf("new search providers: %v", err)
	}
	names := providerNames(got)
	want := []string{service.ProviderUSDA, service.ProviderNutritionix, service.ProviderOpenFoodFacts}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	if _, err := service.NewSearchProviders(service.ProviderOptions{Order: []string{"bing"}}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestNewBarcodeProvidersChain(t *testing.T) {
	t.Parallel()

	names := providerNames(service.NewBarcodeProviders(service.ProviderOptions{}))
	if len(names) != 2 || names[0] != service.ProviderOpenFoodFacts || names[1] != service.ProviderUPCItemDB {
		t.Fatalf("unexpected chain %v", names)
	}
	names = providerNames(service.NewBarcodeProviders(service.ProviderOptions{USDAAPIKey: "k"}))
	if len(names) != 3 || names[1] != service.ProviderUSDA {
		t.Fatalf("expected usda in the middle, got %v", names)
	}
}
