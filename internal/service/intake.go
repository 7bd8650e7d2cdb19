package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saadjs/nutrilog/internal/model"
)

const (
	placeholderConfidence = 0.3
	NoteUnresolved        = "unresolved"
	noteAlias             = "alias"
	noteManual            = "manual"
	defaultPromptGrams    = 100.0
)

// Parser extracts food descriptors from a free-text phrase.
type Parser interface {
	Parse(ctx context.Context, text string) ([]model.FoodDescriptor, error)
}

// Searcher produces a ranked candidate pool for one descriptor.
type Searcher interface {
	Search(ctx context.Context, d model.FoodDescriptor) ([]Candidate, error)
}

// Intake logs food phrases and barcodes into the diary.
type Intake struct {
	DB       *sql.DB
	Parser   Parser
	Searcher Searcher
	Barcodes []BarcodeProvider
	Log      *zap.Logger
	Location *time.Location
	Now      func() time.Time
}

type PromptKind string

const (
	PromptGrams      PromptKind = "grams"
	PromptChoice     PromptKind = "choice"
	PromptCorrection PromptKind = "correction"
	PromptManual     PromptKind = "manual"
)

// Prompt is a question the caller must answer before logging can continue.
type Prompt struct {
	Kind PromptKind
	// Label names the food being resolved.
	Label        string
	DefaultName  string
	DefaultGrams float64
	QuickGrams   []float64
	// Choices is numbered from 1 in Answer.Choice.
	Choices []Candidate
}

// Answer replies to a Prompt. Only the fields relevant to the prompt kind are
// read.
type Answer struct {
	Grams  float64
	Choice int
	Text   string
	Manual *ManualInput
	Cancel bool
}

// ManualInput is a food entered by hand. Macro values are absolute amounts for
// the given grams.
type ManualInput struct {
	Name      string
	Grams     float64
	Kcal      float64
	ProteinG  float64
	CarbsG    float64
	FatG      float64
	FiberG    float64
	SaveAlias bool
}

type Outcome struct {
	Entry        model.Entry
	Items        []model.Item
	Totals       model.Totals
	AliasHit     bool
	Learned      *model.Alias
	AliasSkipped bool
	Cancelled    bool
}

// Step is either finished (Result set) or waiting on Prompt.
type Step struct {
	Prompt *Prompt
	Result *Outcome

	resume func(ctx context.Context, a Answer) (*Step, error)
}

func (s *Step) Done() bool { return s.Result != nil }

// Resume answers the step's prompt. A step can be answered once; an answer
// rejected with an error leaves it open for another attempt, unless the error
// also matches ErrStepClosed because something was already stored.
func (s *Step) Resume(ctx context.Context, a Answer) (*Step, error) {
	if s == nil || s.resume == nil {
		return nil, ErrStepClosed
	}
	next, err := s.resume(ctx, a)
	if err != nil {
		var se *storedError
		if errors.As(err, &se) {
			s.resume = nil
		}
		return nil, err
	}
	s.resume = nil
	return next, nil
}

// storedError is a failure that happened after an item was written. It closes
// the step it came from.
type storedError struct{ err error }

func (e *storedError) Error() string   { return e.err.Error() }
func (e *storedError) Unwrap() []error { return []error{e.err, ErrStepClosed} }

func afterStore(err error) error {
	if err == nil {
		return nil
	}
	return &storedError{err: err}
}

func done(out Outcome) *Step {
	return &Step{Result: &out}
}

func (in *Intake) log() *zap.Logger {
	if in.Log == nil {
		return zap.NewNop()
	}
	return in.Log
}

func (in *Intake) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in *Intake) newEntry(raw string) (model.Entry, error) {
	now := in.now()
	return CreateEntry(in.DB, model.Entry{
		Timestamp: now,
		DateLocal: DateKey(now, in.Location),
		RawText:   raw,
	})
}

// LogPhrase starts logging a free-text phrase. An alias hit bypasses the
// parser and providers entirely; a phrase the parser cannot handle falls back
// to manual entry.
func (in *Intake) LogPhrase(ctx context.Context, raw string) (*Step, error) {
	raw = strings.TrimSpace(raw)
	phrase := NormalizePhrase(raw)
	if phrase == "" {
		return nil, fmt.Errorf("phrase is required")
	}

	alias, found, err := GetAlias(in.DB, phrase)
	if err != nil {
		return nil, err
	}
	if found {
		return in.logAlias(ctx, raw, alias)
	}

	descriptors, err := in.parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	if len(descriptors) == 0 {
		grams := hintGrams(raw)
		if grams == 0 {
			grams = defaultPromptGrams
		}
		return in.manualStep(raw, phrase, raw, grams, ""), nil
	}

	entry, err := in.newEntry(raw)
	if err != nil {
		return nil, err
	}
	s := &phraseSession{in: in, phrase: phrase, entry: entry, descriptors: descriptors}
	s.out.Entry = entry
	return s.advance(ctx)
}

// parse returns no descriptors when the parser is missing or fails. Only a
// cancelled context is reported as an error.
func (in *Intake) parse(ctx context.Context, raw string) ([]model.FoodDescriptor, error) {
	if in.Parser == nil {
		return nil, nil
	}
	descriptors, err := in.Parser.Parse(ctx, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		in.log().Warn("parser unavailable, falling back to manual entry", zap.Error(err))
		return nil, nil
	}
	return descriptors, nil
}

func (in *Intake) logAlias(ctx context.Context, raw string, a model.Alias) (*Step, error) {
	p, err := GetProduct(in.DB, a.ProductID)
	if err != nil {
		return nil, err
	}
	grams, ok, err := ResolveAliasGrams(in.DB, a)
	if err != nil {
		return nil, err
	}
	commit := func(grams float64) (*Step, error) {
		entry, err := in.newEntry(raw)
		if err != nil {
			return nil, err
		}
		m := ProjectMacros(p.Nutriments, grams, p.DefaultServingG)
		it, err := AppendItem(in.DB, model.Item{
			EntryID:     entry.ID,
			ProductID:   p.ID,
			Grams:       grams,
			Macros:      m,
			Confidence:  1,
			DisplayName: raw,
			Note:        macroNote(noteAlias, m),
		})
		if err != nil {
			return nil, err
		}
		totals, err := GetTotals(in.DB, entry.DateLocal)
		if err != nil {
			return nil, afterStore(err)
		}
		in.log().Debug("alias hit", zap.String("phrase", a.Phrase), zap.String("product", p.ID), zap.Float64("grams", grams))
		return done(Outcome{Entry: entry, Items: []model.Item{it}, Totals: totals, AliasHit: true}), nil
	}
	if ok {
		return commit(grams)
	}

	prompt := gramsPrompt(p.Label(), hintGrams(raw), p.DefaultServingG)
	return &Step{
		Prompt: prompt,
		resume: func(_ context.Context, ans Answer) (*Step, error) {
			if ans.Cancel {
				return done(Outcome{AliasHit: true, Cancelled: true}), nil
			}
			grams, err := answerGrams(ans)
			if err != nil {
				return nil, err
			}
			return commit(grams)
		},
	}, nil
}

// manualStep asks for a hand-entered food. The product is stored as custom so
// the phrase (or barcode) resolves next time.
func (in *Intake) manualStep(raw, phrase, defaultName string, defaultGrams float64, barcode string) *Step {
	return &Step{
		Prompt: &Prompt{
			Kind:         PromptManual,
			Label:        raw,
			DefaultName:  defaultName,
			DefaultGrams: defaultGrams,
		},
		resume: func(_ context.Context, ans Answer) (*Step, error) {
			if ans.Cancel {
				return done(Outcome{Cancelled: true}), nil
			}
			if ans.Manual == nil {
				return nil, fmt.Errorf("manual entry details are required")
			}
			return in.commitManual(raw, phrase, defaultName, defaultGrams, barcode, *ans.Manual)
		},
	}
}

func (in *Intake) commitManual(raw, phrase, defaultName string, defaultGrams float64, barcode string, mi ManualInput) (*Step, error) {
	name := strings.TrimSpace(mi.Name)
	if name == "" {
		name = strings.TrimSpace(defaultName)
	}
	if name == "" {
		return nil, fmt.Errorf("food name is required")
	}
	grams := mi.Grams
	if grams <= 0 {
		grams = defaultGrams
	}
	grams = normalizeGrams(grams)
	if err := validateNonNegativeFloat("kcal", mi.Kcal); err != nil {
		return nil, err
	}
	if err := validateMacros(mi.ProteinG, mi.CarbsG, mi.FatG, mi.FiberG); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	p := model.Product{
		ID:         "custom:" + id,
		Source:     "custom",
		SourceID:   id,
		Name:       name,
		Barcode:    barcode,
		Nutriments: perHundredFromTotals(grams, mi.Kcal, mi.ProteinG, mi.CarbsG, mi.FatG, mi.FiberG),
	}
	if err := UpsertProduct(in.DB, p); err != nil {
		return nil, err
	}
	var learned *model.Alias
	if mi.SaveAlias && phrase != "" {
		a, err := SetAlias(in.DB, model.Alias{Phrase: phrase, ProductID: p.ID, GramsOverride: &grams, UpdatedAt: in.now()})
		if err != nil {
			return nil, err
		}
		learned = &a
	}
	entry, err := in.newEntry(raw)
	if err != nil {
		return nil, err
	}
	kcal := int(math.Round(mi.Kcal))
	protein, carbs, fat, fiber := round1(mi.ProteinG), round1(mi.CarbsG), round1(mi.FatG), round1(mi.FiberG)
	it, err := AppendItem(in.DB, model.Item{
		EntryID:     entry.ID,
		ProductID:   p.ID,
		Grams:       grams,
		Macros:      model.Macros{Kcal: &kcal, ProteinG: &protein, CarbsG: &carbs, FatG: &fat, FiberG: &fiber},
		Confidence:  1,
		DisplayName: name,
		Note:        noteManual,
	})
	if err != nil {
		return nil, err
	}

	out := Outcome{Entry: entry, Items: []model.Item{it}, Learned: learned}
	out.Totals, err = GetTotals(in.DB, entry.DateLocal)
	if err != nil {
		return nil, afterStore(err)
	}
	return done(out), nil
}

// phraseSession walks the parsed descriptors of one phrase. All items share
// one entry.
type phraseSession struct {
	in          *Intake
	phrase      string
	entry       model.Entry
	descriptors []model.FoodDescriptor
	idx         int
	out         Outcome
}

func (s *phraseSession) advance(ctx context.Context) (*Step, error) {
	for s.idx < len(s.descriptors) {
		d := s.descriptors[s.idx]
		grams, ok := descriptorGrams(d)
		if !ok {
			return s.gramsStep(d), nil
		}
		step, err := s.resolve(ctx, d, grams)
		if err != nil || step != nil {
			return step, err
		}
	}
	return s.finish()
}

// guard closes the step when an answer fails after items were already
// stored, so answering again cannot log them twice.
func (s *phraseSession) guard(fn func(context.Context, Answer) (*Step, error)) func(context.Context, Answer) (*Step, error) {
	return func(ctx context.Context, ans Answer) (*Step, error) {
		stored := len(s.out.Items)
		next, err := fn(ctx, ans)
		if err != nil && len(s.out.Items) > stored {
			return nil, afterStore(err)
		}
		return next, err
	}
}

// next moves past the current descriptor and continues.
func (s *phraseSession) next(ctx context.Context) (*Step, error) {
	s.idx++
	return s.advance(ctx)
}

func (s *phraseSession) finish() (*Step, error) {
	totals, err := GetTotals(s.in.DB, s.entry.DateLocal)
	if err != nil {
		return nil, err
	}
	s.out.Totals = totals
	return done(s.out), nil
}

func (s *phraseSession) gramsStep(d model.FoodDescriptor) *Step {
	def := 0.0
	if d.Qty != nil {
		def, _ = SuggestGrams(*d.Qty, d.Unit)
	}
	return &Step{
		Prompt: gramsPrompt(joinNonEmpty(d.Brand, d.Name), def, nil),
		resume: s.guard(func(ctx context.Context, ans Answer) (*Step, error) {
			if ans.Cancel {
				return s.next(ctx)
			}
			grams, err := answerGrams(ans)
			if err != nil {
				return nil, err
			}
			step, err := s.resolve(ctx, d, grams)
			if err != nil || step != nil {
				return step, err
			}
			return s.advance(ctx)
		}),
	}
}

// resolve runs the search for one descriptor. It returns a nil step once the
// item is logged.
func (s *phraseSession) resolve(ctx context.Context, d model.FoodDescriptor, grams float64) (*Step, error) {
	pool, err := s.search(ctx, d)
	if err != nil {
		return nil, err
	}
	res := Arbitrate(pool)
	switch res.Status {
	case ResolutionOK:
		s.in.log().Info("auto-accepted candidate",
			zap.String("food", d.Name),
			zap.String("product", res.Best.Product.ID),
			zap.Float64("confidence", res.Best.Confidence))
		if err := s.logCandidate(*res.Best, grams); err != nil {
			return nil, err
		}
		s.idx++
		return nil, nil
	case ResolutionChoices:
		return s.choiceStep(d, grams, res.Choices, false), nil
	default:
		return s.correctionStep(d, grams, res.Choices), nil
	}
}

func (s *phraseSession) search(ctx context.Context, d model.FoodDescriptor) ([]Candidate, error) {
	if s.in.Searcher == nil {
		return nil, nil
	}
	return s.in.Searcher.Search(ctx, d)
}

func (s *phraseSession) choiceStep(d model.FoodDescriptor, grams float64, choices []Candidate, retried bool) *Step {
	return &Step{
		Prompt: &Prompt{
			Kind:         PromptChoice,
			Label:        joinNonEmpty(d.Brand, d.Name),
			DefaultGrams: grams,
			Choices:      choices,
		},
		resume: s.guard(func(ctx context.Context, ans Answer) (*Step, error) {
			if ans.Cancel {
				return s.next(ctx)
			}
			if ans.Choice == 0 && strings.TrimSpace(ans.Text) != "" {
				if retried {
					return s.placeholder(ctx, ans.Text, grams)
				}
				return s.retry(ctx, ans.Text, grams)
			}
			c, err := pickChoice(choices, ans.Choice)
			if err != nil {
				return nil, err
			}
			if err := s.logCandidate(c, grams); err != nil {
				return nil, err
			}
			return s.next(ctx)
		}),
	}
}

func (s *phraseSession) correctionStep(d model.FoodDescriptor, grams float64, choices []Candidate) *Step {
	label := joinNonEmpty(d.Brand, d.Name)
	return &Step{
		Prompt: &Prompt{
			Kind:         PromptCorrection,
			Label:        label,
			DefaultName:  label,
			DefaultGrams: grams,
			Choices:      choices,
		},
		resume: s.guard(func(ctx context.Context, ans Answer) (*Step, error) {
			if ans.Cancel {
				return s.placeholder(ctx, label, grams)
			}
			if ans.Choice != 0 {
				c, err := pickChoice(choices, ans.Choice)
				if err != nil {
					return nil, err
				}
				if err := s.logCandidate(c, grams); err != nil {
					return nil, err
				}
				return s.next(ctx)
			}
			text := strings.TrimSpace(ans.Text)
			if text == "" {
				return nil, fmt.Errorf("a corrected food name is required")
			}
			return s.retry(ctx, text, grams)
		}),
	}
}

// retry re-resolves once with a corrected name. Anything short of a choice
// or an automatic match becomes a placeholder.
func (s *phraseSession) retry(ctx context.Context, text string, grams float64) (*Step, error) {
	d := model.FoodDescriptor{Name: text}
	pool, err := s.search(ctx, d)
	if err != nil {
		return nil, err
	}
	res := Arbitrate(pool)
	switch res.Status {
	case ResolutionOK:
		if err := s.logCandidate(*res.Best, grams); err != nil {
			return nil, err
		}
		return s.next(ctx)
	case ResolutionChoices:
		return s.choiceStep(d, grams, res.Choices, true), nil
	default:
		return s.placeholder(ctx, text, grams)
	}
}

func (s *phraseSession) placeholder(ctx context.Context, name string, grams float64) (*Step, error) {
	name = strings.TrimSpace(name)
	s.in.log().Info("logging placeholder", zap.String("food", name), zap.Error(ErrUnresolvable))
	id := uuid.New().String()
	p := model.Product{ID: "parsed:" + id, Source: "parsed", SourceID: id, Name: name}
	if err := UpsertProduct(s.in.DB, p); err != nil {
		return nil, err
	}
	it, err := AppendItem(s.in.DB, model.Item{
		EntryID:     s.entry.ID,
		ProductID:   p.ID,
		Grams:       grams,
		Confidence:  placeholderConfidence,
		DisplayName: name,
		Note:        NoteUnresolved,
	})
	if err != nil {
		return nil, err
	}
	s.out.Items = append(s.out.Items, it)
	return s.next(ctx)
}

// logCandidate stores the product and appends its item. Every accepted match
// teaches the alias table, but only for single-food phrases.
func (s *phraseSession) logCandidate(c Candidate, grams float64) error {
	p := c.Product
	if err := UpsertProduct(s.in.DB, p); err != nil {
		return err
	}
	if p.DefaultServingG != nil {
		if err := UpsertServing(s.in.DB, model.Serving{ProductID: p.ID, Label: servingLabel, Grams: *p.DefaultServingG}); err != nil {
			return err
		}
	}
	var learned *model.Alias
	if len(s.descriptors) == 1 {
		a, err := SetAlias(s.in.DB, model.Alias{Phrase: s.phrase, ProductID: p.ID, GramsOverride: &grams, UpdatedAt: s.in.now()})
		if err != nil {
			return err
		}
		learned = &a
	}
	m := ProjectMacros(p.Nutriments, grams, p.DefaultServingG)
	it, err := AppendItem(s.in.DB, model.Item{
		EntryID:     s.entry.ID,
		ProductID:   p.ID,
		Grams:       grams,
		Macros:      m,
		Confidence:  c.Confidence,
		DisplayName: p.Label(),
		Note:        macroNote("", m),
	})
	if err != nil {
		return err
	}
	s.out.Items = append(s.out.Items, it)
	if learned == nil {
		s.out.AliasSkipped = true
		return nil
	}
	s.in.log().Debug("learned alias", zap.String("phrase", learned.Phrase), zap.String("product", p.ID))
	s.out.Learned = learned
	return nil
}

// descriptorGrams uses the parser's grams, or converts a metric quantity.
// Anything else has to be asked.
func descriptorGrams(d model.FoodDescriptor) (float64, bool) {
	if d.Grams != nil && *d.Grams > 0 && !math.IsInf(*d.Grams, 0) {
		return normalizeGrams(*d.Grams), true
	}
	if d.Qty != nil {
		return exactGrams(*d.Qty, d.Unit)
	}
	return 0, false
}

// hintGrams reads a mass or volume quantity out of the raw phrase.
func hintGrams(raw string) float64 {
	q, ok := TryParseQtyUnit(raw)
	if !ok || !q.IsMassOrVolume() {
		return 0
	}
	g, ok := SuggestGrams(q.Qty, q.Unit)
	if !ok {
		return 0
	}
	return g
}

func gramsPrompt(label string, hint float64, servingG *float64) *Prompt {
	p := &Prompt{Kind: PromptGrams, Label: label, DefaultGrams: defaultPromptGrams}
	quick := []float64{defaultPromptGrams}
	if servingG != nil && *servingG > 0 {
		p.DefaultGrams = normalizeGrams(*servingG)
		if p.DefaultGrams != defaultPromptGrams {
			quick = append(quick, p.DefaultGrams)
		}
	}
	if hint > 0 {
		p.DefaultGrams = hint
	}
	p.QuickGrams = append(quick, 250)
	return p
}

func answerGrams(ans Answer) (float64, error) {
	if ans.Grams <= 0 || math.IsNaN(ans.Grams) || math.IsInf(ans.Grams, 0) {
		return 0, fmt.Errorf("grams must be > 0")
	}
	return normalizeGrams(ans.Grams), nil
}

func pickChoice(choices []Candidate, n int) (Candidate, error) {
	if n < 1 || n > len(choices) {
		return Candidate{}, fmt.Errorf("choice must be between 1 and %d", len(choices))
	}
	return choices[n-1], nil
}
