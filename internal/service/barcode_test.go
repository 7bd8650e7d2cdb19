package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/saadjs/nutrilog/internal/db"
	"github.com/saadjs/nutrilog/internal/model"
)

func newServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	sqldb, err := db.Open(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(sqldb); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	return sqldb
}

type fakeBarcodeProvider struct {
	name    string
	product model.Product
	err     error
	calls   int
}

func (f *fakeBarcodeProvider) Name() string { return f.name }

func (f *fakeBarcodeProvider) LookupBarcode(_ context.Context, _ string) (model.Product, error) {
	f.calls++
	if f.err != nil {
		return model.Product{}, f.err
	}
	return f.product, nil
}

func proteinBar() model.Product {
	serving := 60.0
	return model.Product{
		ID:              "off:4006040067190",
		Source:          "off",
		SourceID:        "4006040067190",
		Name:            "Protein Bar",
		Brand:           "Brand",
		Barcode:         "4006040067190",
		DefaultServingG: &serving,
		Nutriments: model.Nutriments{
			"energy-kcal_100g":   350,
			"proteins_100g":      33,
			"carbohydrates_100g": 30,
			"fat_100g":           10,
		},
	}
}

func TestLookupBarcodeValidation(t *testing.T) {
	sqldb := newServiceDB(t)
	for _, code := range []string{"abc", "1234567", "123456789012345", "12345678a"} {
		_, err := LookupBarcode(context.Background(), sqldb, nil, code, nil)
		if !errors.Is(err, ErrInvalidBarcode) {
			t.Fatalf("expected ErrInvalidBarcode for %q, got %v", code, err)
		}
	}
}

func TestLookupBarcodeStoresAndReusesProduct(t *testing.T) {
	sqldb := newServiceDB(t)
	off := &fakeBarcodeProvider{name: ProviderOpenFoodFacts, product: proteinBar()}

	p, err := LookupBarcode(context.Background(), sqldb, []BarcodeProvider{off}, "4006040067190", nil)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if p.ID != "off:4006040067190" {
		t.Fatalf("unexpected product %+v", p)
	}
	servings, err := ListServings(sqldb, p.ID)
	if err != nil {
		t.Fatalf("list servings: %v", err)
	}
	if len(servings) != 1 || servings[0].Label != "serving" || servings[0].Grams != 60 {
		t.Fatalf("expected stored serving, got %+v", servings)
	}

	if _, err := LookupBarcode(context.Background(), sqldb, []BarcodeProvider{off}, "4006040067190", nil); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if off.calls != 1 {
		t.Fatalf("expected local hit on second lookup, got %d provider calls", off.calls)
	}
}

func TestLookupBarcodeFallsBackThroughChain(t *testing.T) {
	sqldb := newServiceDB(t)
	off := &fakeBarcodeProvider{name: ProviderOpenFoodFacts, err: ErrProductNotFound}
	broken := &fakeBarcodeProvider{name: "broken", err: errors.New("status 503")}
	upc := &fakeBarcodeProvider{name: ProviderUPCItemDB, product: model.Product{
		ID: "upc:012345678905", Source: "upc", SourceID: "012345678905", Name: "Granola",
	}}

	p, err := LookupBarcode(context.Background(), sqldb, []BarcodeProvider{off, broken, upc}, "012345678905", nil)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.ID != "upc:012345678905" || p.Barcode != "012345678905" {
		t.Fatalf("unexpected product %+v", p)
	}
	if off.calls != 1 || broken.calls != 1 || upc.calls != 1 {
		t.Fatalf("expected each provider once, got %d/%d/%d", off.calls, broken.calls, upc.calls)
	}

	_, err = LookupBarcode(context.Background(), sqldb, []BarcodeProvider{off}, "99999999", nil)
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestLogBarcodeAsksForGramsWithQuickChips(t *testing.T) {
	sqldb := newServiceDB(t)
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	in := &Intake{
		DB:       sqldb,
		Barcodes: []BarcodeProvider{&fakeBarcodeProvider{name: ProviderOpenFoodFacts, product: proteinBar()}},
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}

	step, err := in.LogBarcode(context.Background(), "4006040067190")
	if err != nil {
		t.Fatalf("log barcode: %v", err)
	}
	if step.Done() || step.Prompt.Kind != PromptGrams {
		t.Fatalf("expected grams prompt, got %+v", step)
	}
	if step.Prompt.DefaultGrams != 60 {
		t.Fatalf("expected serving default, got %v", step.Prompt.DefaultGrams)
	}
	want := []float64{100, 60, 250}
	if len(step.Prompt.QuickGrams) != len(want) {
		t.Fatalf("unexpected quick grams %v", step.Prompt.QuickGrams)
	}
	for i := range want {
		if step.Prompt.QuickGrams[i] != want[i] {
			t.Fatalf("unexpected quick grams %v", step.Prompt.QuickGrams)
		}
	}

	if _, err := step.Resume(context.Background(), Answer{Grams: -5}); err == nil {
		t.Fatalf("expected invalid grams to be rejected")
	}
	final, err := step.Resume(context.Background(), Answer{Grams: 60})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !final.Done() {
		t.Fatalf("expected finished step")
	}
	out := final.Result
	if out.Entry.RawText != "barcode:4006040067190" {
		t.Fatalf("unexpected raw text %q", out.Entry.RawText)
	}
	if len(out.Items) != 1 || out.Items[0].Confidence != 1 {
		t.Fatalf("unexpected items %+v", out.Items)
	}
	if out.Totals.Kcal != 210 || out.Totals.ProteinG != 19.8 {
		t.Fatalf("unexpected totals %+v", out.Totals)
	}
	if _, err := step.Resume(context.Background(), Answer{Grams: 60}); !errors.Is(err, ErrStepClosed) {
		t.Fatalf("expected closed step, got %v", err)
	}
}

func TestLogBarcodeUnknownFallsBackToManual(t *testing.T) {
	sqldb := newServiceDB(t)
	in := &Intake{
		DB:       sqldb,
		Barcodes: []BarcodeProvider{&fakeBarcodeProvider{name: ProviderOpenFoodFacts, err: ErrProductNotFound}},
		Location: time.UTC,
	}

	step, err := in.LogBarcode(context.Background(), "12345670")
	if err != nil {
		t.Fatalf("log barcode: %v", err)
	}
	if step.Prompt == nil || step.Prompt.Kind != PromptManual {
		t.Fatalf("expected manual prompt, got %+v", step)
	}
	final, err := step.Resume(context.Background(), Answer{Manual: &ManualInput{Name: "Local bread", Grams: 50, Kcal: 130, CarbsG: 24}})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if final.Result.Entry.RawText != "barcode:12345670" {
		t.Fatalf("unexpected raw text %q", final.Result.Entry.RawText)
	}

	p, found, err := GetProductByBarcode(sqldb, "12345670")
	if err != nil || !found {
		t.Fatalf("expected manual product stored with barcode, found=%v err=%v", found, err)
	}
	if p.Source != "custom" || p.Name != "Local bread" {
		t.Fatalf("unexpected stored product %+v", p)
	}
}
