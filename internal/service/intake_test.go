package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saadjs/nutrilog/internal/model"
	"github.com/saadjs/nutrilog/internal/service"
)

func newIntake(t *testing.T, parser service.Parser, providers ...service.Provider) *service.Intake {
	t.Helper()
	return &service.Intake{
		DB:     newTestDB(t),
		Parser: parser,
		Searcher: &service.Merger{
			Providers: providers,
			Bias:      service.DefaultSourceBias(),
			Timeout:   time.Second,
		},
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}
}

func skyr() model.Product {
	return model.Product{
		ID:         "off:5690527000015",
		Source:     "off",
		SourceID:   "5690527000015",
		Name:       "Skyr",
		Brand:      "Isey",
		Nutriments: completeNutriments(60, 10, 4, 0.2),
	}
}

func banana() model.Product {
	return model.Product{
		ID:         "off:banana",
		Source:     "off",
		SourceID:   "banana",
		Name:       "Banana",
		Nutriments: completeNutriments(89, 1.1, 22.8, 0.3),
	}
}

func mustDone(t *testing.T, step *service.Step, err error) *service.Outcome {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.Done() {
		t.Fatalf("expected finished step, got prompt %+v", step.Prompt)
	}
	return step.Result
}

// finish wraps mustDone so a (step, err) call can be passed straight in.
func finish(t *testing.T) func(*service.Step, error) *service.Outcome {
	t.Helper()
	return func(step *service.Step, err error) *service.Outcome {
		t.Helper()
		return mustDone(t, step, err)
	}
}

func mustPrompt(t *testing.T, step *service.Step, err error, kind service.PromptKind) *service.Prompt {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Done() || step.Prompt == nil {
		t.Fatalf("expected %s prompt, got result %+v", kind, step.Result)
	}
	if step.Prompt.Kind != kind {
		t.Fatalf("expected %s prompt, got %s", kind, step.Prompt.Kind)
	}
	return step.Prompt
}

func TestLogPhraseAliasOverrideSkipsParserAndProviders(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "skyr"}}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{skyr()}}
	in := newIntake(t, parser, provider)

	if err := service.UpsertProduct(in.DB, skyr()); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	if _, err := service.SetAlias(in.DB, model.Alias{Phrase: "My Skyr", ProductID: skyr().ID, GramsOverride: floatPtr(150)}); err != nil {
		t.Fatalf("set alias: %v", err)
	}

	step, err := in.LogPhrase(context.Background(), "  my   SKYR ")
	out := mustDone(t, step, err)
	if !out.AliasHit {
		t.Fatalf("expected alias hit")
	}
	if parser.calls != 0 || provider.callCount() != 0 {
		t.Fatalf("expected no parser or provider calls, got %d/%d", parser.calls, provider.callCount())
	}
	if len(out.Items) != 1 || out.Items[0].Grams != 150 || *out.Items[0].Macros.Kcal != 90 {
		t.Fatalf("unexpected items %+v", out.Items)
	}
	if out.Totals.Kcal != 90 || out.Totals.ProteinG != 15 {
		t.Fatalf("unexpected totals %+v", out.Totals)
	}
}

func TestLogPhraseAliasWithoutGramsAsks(t *testing.T) {
	in := newIntake(t, &fakeParser{})
	if err := service.UpsertProduct(in.DB, skyr()); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	if _, err := service.SetAlias(in.DB, model.Alias{Phrase: "skyr", ProductID: skyr().ID, ServingLabel: "cup"}); err != nil {
		t.Fatalf("set alias: %v", err)
	}

	step, err := in.LogPhrase(context.Background(), "skyr")
	prompt := mustPrompt(t, step, err, service.PromptGrams)
	if prompt.DefaultGrams != 100 {
		t.Fatalf("expected default 100 g, got %v", prompt.DefaultGrams)
	}
	out := finish(t)(step.Resume(context.Background(), service.Answer{Grams: 199.6}))
	if out.Items[0].Grams != 200 {
		t.Fatalf("expected rounded grams, got %v", out.Items[0].Grams)
	}
}

func TestLogPhraseParserOfflineFallsBackToManual(t *testing.T) {
	parser := &fakeParser{err: errors.New("dial tcp: connection refused")}
	in := newIntake(t, parser)

	before, err := service.GetTotals(in.DB, "2026-03-14")
	if err != nil {
		t.Fatalf("get totals: %v", err)
	}

	step, err := in.LogPhrase(context.Background(), "200 g skyr")
	prompt := mustPrompt(t, step, err, service.PromptManual)
	if prompt.DefaultGrams != 200 {
		t.Fatalf("expected grams pre-filled from phrase, got %v", prompt.DefaultGrams)
	}
	if prompt.DefaultName != "200 g skyr" {
		t.Fatalf("unexpected default name %q", prompt.DefaultName)
	}

	out := finish(t)(step.Resume(context.Background(), service.Answer{Manual: &service.ManualInput{
		Name: "skyr", Kcal: 130, ProteinG: 22, CarbsG: 8, FatG: 0.4, SaveAlias: true,
	}}))
	if out.Items[0].Grams != 200 || out.Items[0].Note != "manual" {
		t.Fatalf("unexpected item %+v", out.Items[0])
	}
	if out.Totals.Kcal-before.Kcal != 130 || out.Totals.ProteinG-before.ProteinG != 22 ||
		out.Totals.CarbsG-before.CarbsG != 8 || out.Totals.FatG-before.FatG != 0.4 {
		t.Fatalf("totals did not increase by the entered macros: before %+v after %+v", before, out.Totals)
	}
	if out.Learned == nil || out.Learned.Phrase != "200 g skyr" {
		t.Fatalf("expected alias learned for manual product, got %+v", out.Learned)
	}

	p, err := service.GetProduct(in.DB, out.Items[0].ProductID)
	if err != nil {
		t.Fatalf("get manual product: %v", err)
	}
	if p.Source != "custom" || p.Nutriments["energy-kcal_100g"] != 65 {
		t.Fatalf("unexpected manual product %+v", p)
	}
}

func TestLogPhraseAutoResolveLearnsAliasForRepeat(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "skyr", Brand: "isey", Grams: floatPtr(150)}}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{skyr()}}
	in := newIntake(t, parser, provider)

	out := finish(t)(in.LogPhrase(context.Background(), "Isey skyr 150g"))
	if out.AliasHit {
		t.Fatalf("first log should not be an alias hit")
	}
	if out.Learned == nil || out.Learned.ProductID != skyr().ID || *out.Learned.GramsOverride != 150 {
		t.Fatalf("expected learned alias, got %+v", out.Learned)
	}
	if out.Items[0].Confidence < service.AutoAcceptThreshold {
		t.Fatalf("expected auto-accepted confidence, got %v", out.Items[0].Confidence)
	}

	again := finish(t)(in.LogPhrase(context.Background(), "isey SKYR 150g"))
	if !again.AliasHit {
		t.Fatalf("expected alias hit on repeat")
	}
	if parser.calls != 1 || provider.callCount() != 1 {
		t.Fatalf("expected no new parser or provider calls, got %d/%d", parser.calls, provider.callCount())
	}
	if again.Items[0].ProductID != skyr().ID || again.Items[0].Grams != 150 {
		t.Fatalf("unexpected repeat item %+v", again.Items[0])
	}
	if again.Totals.Kcal != 180 {
		t.Fatalf("expected totals from both logs, got %+v", again.Totals)
	}
}

func TestLogPhraseChoicesConfirmedPickLearnsAlias(t *testing.T) {
	fage := model.Product{ID: "off:fage", Source: "off", SourceID: "fage", Name: "Greek Yogurt", Brand: "Fage", Nutriments: completeNutriments(97, 9, 4, 5)}
	oikos := model.Product{ID: "off:oikos", Source: "off", SourceID: "oikos", Name: "Greek Yogurt", Brand: "Oikos", Nutriments: completeNutriments(80, 10, 5, 2)}
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "greek yogurt", Grams: floatPtr(170)}}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{fage, oikos}}
	in := newIntake(t, parser, provider)

	step, err := in.LogPhrase(context.Background(), "greek yogurt")
	prompt := mustPrompt(t, step, err, service.PromptChoice)
	if len(prompt.Choices) != 2 || prompt.Choices[0].Product.ID != "off:fage" {
		t.Fatalf("unexpected choices %+v", prompt.Choices)
	}

	if _, err := step.Resume(context.Background(), service.Answer{Choice: 3}); err == nil {
		t.Fatalf("expected out-of-range choice to be rejected")
	}
	out := finish(t)(step.Resume(context.Background(), service.Answer{Choice: 2}))
	if out.Items[0].ProductID != "off:oikos" || out.Items[0].Grams != 170 {
		t.Fatalf("unexpected item %+v", out.Items[0])
	}
	if out.Learned == nil || out.Learned.ProductID != "off:oikos" {
		t.Fatalf("expected confirmed choice to be learned, got %+v", out.Learned)
	}
}

func TestLogPhraseCorrectionThenPlaceholder(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "mystery bar", Grams: floatPtr(40)}}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts}
	in := newIntake(t, parser, provider)

	step, err := in.LogPhrase(context.Background(), "mystery bar")
	prompt := mustPrompt(t, step, err, service.PromptCorrection)
	if len(prompt.Choices) != 0 {
		t.Fatalf("expected no best-effort choices, got %d", len(prompt.Choices))
	}

	out := finish(t)(step.Resume(context.Background(), service.Answer{Text: "crunchy protein bar"}))
	if len(out.Items) != 1 {
		t.Fatalf("expected placeholder item, got %+v", out.Items)
	}
	it := out.Items[0]
	if it.Note != service.NoteUnresolved || it.Confidence != 0.3 || it.Macros.Kcal != nil || it.DisplayName != "crunchy protein bar" {
		t.Fatalf("unexpected placeholder %+v", it)
	}
	if out.Totals.Kcal != 0 {
		t.Fatalf("placeholder must not move totals, got %+v", out.Totals)
	}
	if out.Learned != nil {
		t.Fatalf("placeholder must not learn an alias")
	}
	if provider.callCount() != 2 || provider.queries[1] != "crunchy protein bar" {
		t.Fatalf("expected one retry with the corrected name, got %v", provider.queries)
	}
}

func TestLogPhraseCancelledCorrectionStillLogsPlaceholder(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "mystery bar", Grams: floatPtr(40)}}}
	in := newIntake(t, parser, &fakeProvider{name: service.ProviderOpenFoodFacts})

	step, err := in.LogPhrase(context.Background(), "mystery bar")
	mustPrompt(t, step, err, service.PromptCorrection)
	out := finish(t)(step.Resume(context.Background(), service.Answer{Cancel: true}))
	if len(out.Items) != 1 || out.Items[0].Note != service.NoteUnresolved {
		t.Fatalf("expected placeholder, got %+v", out.Items)
	}
}

func TestLogPhraseMultiItemSkipsAliasLearning(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{
		{Name: "skyr", Brand: "isey", Grams: floatPtr(150)},
		{Name: "banana", Grams: floatPtr(120)},
	}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{skyr(), banana()}}
	in := newIntake(t, parser, provider)

	out := finish(t)(in.LogPhrase(context.Background(), "isey skyr and a banana"))
	if len(out.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out.Items))
	}
	if out.Items[0].EntryID != out.Entry.ID || out.Items[1].EntryID != out.Entry.ID {
		t.Fatalf("expected one entry for the phrase")
	}
	if !out.AliasSkipped || out.Learned != nil {
		t.Fatalf("expected alias learning skipped, got skipped=%v learned=%+v", out.AliasSkipped, out.Learned)
	}
	if _, found, err := service.GetAlias(in.DB, "isey skyr and a banana"); err != nil || found {
		t.Fatalf("expected no alias stored, found=%v err=%v", found, err)
	}
	entries, err := service.ListEntries(in.DB, "2026-03-14")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if out.Totals.Kcal != 90+107 {
		t.Fatalf("unexpected totals %+v", out.Totals)
	}
}

func TestLogPhraseCancelledGramsSkipsOnlyThatItem(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{
		{Name: "rice", Qty: floatPtr(1), Unit: "bowl"},
		{Name: "banana", Grams: floatPtr(120)},
	}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{banana()}}
	in := newIntake(t, parser, provider)

	step, err := in.LogPhrase(context.Background(), "a bowl of rice and a banana")
	prompt := mustPrompt(t, step, err, service.PromptGrams)
	if prompt.Label != "rice" || prompt.DefaultGrams != 100 {
		t.Fatalf("unexpected grams prompt %+v", prompt)
	}
	out := finish(t)(step.Resume(context.Background(), service.Answer{Cancel: true}))
	if len(out.Items) != 1 || out.Items[0].ProductID != "off:banana" {
		t.Fatalf("expected only the banana, got %+v", out.Items)
	}
	if provider.callCount() != 1 {
		t.Fatalf("cancelled item must not be searched, got %d calls", provider.callCount())
	}
}

func TestLogPhraseMassUnitNeedsNoGramsPrompt(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "banana", Qty: floatPtr(0.5), Unit: "kg"}}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{banana()}}
	in := newIntake(t, parser, provider)

	out := finish(t)(in.LogPhrase(context.Background(), "half a kilo of bananas"))
	if out.Items[0].Grams != 500 {
		t.Fatalf("expected 500 g, got %v", out.Items[0].Grams)
	}
}

func TestLogPhraseCupAsksForGramsWithSuggestion(t *testing.T) {
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "oats", Qty: floatPtr(1), Unit: "cup"}}}
	oats := model.Product{ID: "off:oats", Source: "off", SourceID: "oats", Name: "Oats", Nutriments: completeNutriments(380, 13, 60, 7)}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{oats}}
	in := newIntake(t, parser, provider)

	step, err := in.LogPhrase(context.Background(), "a cup of oats")
	prompt := mustPrompt(t, step, err, service.PromptGrams)
	if prompt.Label != "oats" || prompt.DefaultGrams != 237 {
		t.Fatalf("expected a grams prompt suggesting 237 g, got %+v", prompt)
	}
	if provider.callCount() != 0 {
		t.Fatalf("expected no search before grams are known, got %d calls", provider.callCount())
	}

	out := finish(t)(step.Resume(context.Background(), service.Answer{Grams: 80}))
	if len(out.Items) != 1 || out.Items[0].Grams != 80 || *out.Items[0].Macros.Kcal != 304 {
		t.Fatalf("expected 80 g of oats at 304 kcal, got %+v", out.Items)
	}
}

func TestLogPhraseCancelledManualLogsNothing(t *testing.T) {
	in := newIntake(t, &fakeParser{})

	step, err := in.LogPhrase(context.Background(), "grandma's stew")
	prompt := mustPrompt(t, step, err, service.PromptManual)
	if prompt.DefaultGrams != 100 {
		t.Fatalf("expected 100 g default, got %v", prompt.DefaultGrams)
	}
	if _, err := step.Resume(context.Background(), service.Answer{}); err == nil {
		t.Fatalf("expected missing manual details to be rejected")
	}
	out := finish(t)(step.Resume(context.Background(), service.Answer{Cancel: true}))
	if !out.Cancelled || len(out.Items) != 0 {
		t.Fatalf("expected cancelled outcome, got %+v", out)
	}
	entries, err := service.ListEntries(in.DB, "2026-03-14")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestLogPhraseRejectsBlankPhrase(t *testing.T) {
	in := newIntake(t, &fakeParser{})
	if _, err := in.LogPhrase(context.Background(), "   "); err == nil {
		t.Fatalf("expected blank phrase error")
	}
}

func countItems(t *testing.T, in *service.Intake) int {
	t.Helper()
	var n int
	if err := in.DB.QueryRow(`SELECT COUNT(1) FROM items`).Scan(&n); err != nil {
		t.Fatalf("count items: %v", err)
	}
	return n
}

func TestLogPhraseAliasFailureLogsNothingAndCanBeRetried(t *testing.T) {
	fage := model.Product{ID: "off:fage", Source: "off", SourceID: "fage", Name: "Greek Yogurt", Brand: "Fage", Nutriments: completeNutriments(97, 9, 4, 5)}
	oikos := model.Product{ID: "off:oikos", Source: "off", SourceID: "oikos", Name: "Greek Yogurt", Brand: "Oikos", Nutriments: completeNutriments(80, 10, 5, 2)}
	parser := &fakeParser{items: []model.FoodDescriptor{{Name: "greek yogurt", Grams: floatPtr(170)}}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{fage, oikos}}
	in := newIntake(t, parser, provider)

	step, err := in.LogPhrase(context.Background(), "greek yogurt")
	mustPrompt(t, step, err, service.PromptChoice)

	if _, err := in.DB.Exec(`CREATE TRIGGER block_aliases BEFORE INSERT ON aliases BEGIN SELECT RAISE(ABORT, 'aliases locked'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if _, err := step.Resume(context.Background(), service.Answer{Choice: 2}); err == nil || errors.Is(err, service.ErrStepClosed) {
		t.Fatalf("expected a retryable alias failure, got %v", err)
	}
	if n := countItems(t, in); n != 0 {
		t.Fatalf("expected no item before the alias is stored, got %d", n)
	}

	if _, err := in.DB.Exec(`DROP TRIGGER block_aliases`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	out := finish(t)(step.Resume(context.Background(), service.Answer{Choice: 2}))
	if n := countItems(t, in); n != 1 {
		t.Fatalf("expected exactly one item after retry, got %d", n)
	}
	if out.Totals.Kcal != 136 || out.Learned == nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestLogPhraseFailureAfterStoredItemClosesStep(t *testing.T) {
	rice := model.Product{ID: "off:rice", Source: "off", SourceID: "rice", Name: "Rice", Nutriments: completeNutriments(130, 2.7, 28, 0.3)}
	parser := &fakeParser{items: []model.FoodDescriptor{
		{Name: "rice", Qty: floatPtr(1), Unit: "bowl"},
		{Name: "banana", Grams: floatPtr(120)},
	}}
	provider := &fakeProvider{name: service.ProviderOpenFoodFacts, products: []model.Product{rice, banana()}}
	in := newIntake(t, parser, provider)

	step, err := in.LogPhrase(context.Background(), "a bowl of rice and a banana")
	mustPrompt(t, step, err, service.PromptGrams)

	if _, err := in.DB.Exec(`CREATE TRIGGER block_banana BEFORE INSERT ON products WHEN NEW.id = 'off:banana' BEGIN SELECT RAISE(ABORT, 'no bananas'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if _, err := step.Resume(context.Background(), service.Answer{Grams: 200}); !errors.Is(err, service.ErrStepClosed) {
		t.Fatalf("expected step to close after rice was stored, got %v", err)
	}
	if _, err := step.Resume(context.Background(), service.Answer{Grams: 200}); !errors.Is(err, service.ErrStepClosed) {
		t.Fatalf("expected closed step, got %v", err)
	}
	if n := countItems(t, in); n != 1 {
		t.Fatalf("expected rice logged once, got %d items", n)
	}
}
