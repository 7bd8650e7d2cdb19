package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/saadjs/nutrilog/internal/model"
)

const servingLabel = "serving"

var barcodeRe = regexp.MustCompile(`^\d{8,14}$`)

func isValidBarcode(code string) bool {
	return barcodeRe.MatchString(code)
}

// LookupBarcode finds a product by barcode, locally first and then through the
// provider chain in order. Fetched products are stored so the next scan stays
// local. ErrProductNotFound is returned when no source knows the code.
func LookupBarcode(ctx context.Context, db *sql.DB, providers []BarcodeProvider, code string, log *zap.Logger) (model.Product, error) {
	code = strings.TrimSpace(code)
	if !isValidBarcode(code) {
		return model.Product{}, fmt.Errorf("%q (expected 8-14 digits): %w", code, ErrInvalidBarcode)
	}
	if log == nil {
		log = zap.NewNop()
	}

	p, found, err := GetProductByBarcode(db, code)
	if err != nil {
		return model.Product{}, err
	}
	if found {
		return p, nil
	}

	for _, provider := range providers {
		p, err := provider.LookupBarcode(ctx, code)
		if errors.Is(err, ErrProductNotFound) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.Product{}, ctxErr
			}
			log.Warn("barcode lookup failed",
				zap.String("provider", provider.Name()),
				zap.String("barcode", code),
				zap.Error(fmt.Errorf("%w: %v", ErrProviderUnavailable, err)))
			continue
		}
		if p.Barcode == "" {
			p.Barcode = code
		}
		if err := UpsertProduct(db, p); err != nil {
			return model.Product{}, err
		}
		if p.DefaultServingG != nil {
			if err := UpsertServing(db, model.Serving{ProductID: p.ID, Label: servingLabel, Grams: *p.DefaultServingG}); err != nil {
				return model.Product{}, err
			}
		}
		log.Debug("barcode resolved", zap.String("provider", provider.Name()), zap.String("product", p.ID))
		return p, nil
	}
	return model.Product{}, fmt.Errorf("barcode %s: %w", code, ErrProductNotFound)
}

// LogBarcode starts logging a scanned product. An unknown code falls back to
// manual entry and the hand-entered product keeps the barcode.
func (in *Intake) LogBarcode(ctx context.Context, code string) (*Step, error) {
	code = strings.TrimSpace(code)
	raw := "barcode:" + code
	p, err := LookupBarcode(ctx, in.DB, in.Barcodes, code, in.log())
	if errors.Is(err, ErrProductNotFound) {
		return in.manualStep(raw, "", "", defaultPromptGrams, code), nil
	}
	if err != nil {
		return nil, err
	}

	return &Step{
		Prompt: gramsPrompt(p.Label(), 0, p.DefaultServingG),
		resume: func(_ context.Context, ans Answer) (*Step, error) {
			if ans.Cancel {
				return done(Outcome{Cancelled: true}), nil
			}
			grams, err := answerGrams(ans)
			if err != nil {
				return nil, err
			}
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
				DisplayName: p.Label(),
				Note:        macroNote("", m),
			})
			if err != nil {
				return nil, err
			}
			totals, err := GetTotals(in.DB, entry.DateLocal)
			if err != nil {
				return nil, afterStore(err)
			}
			return done(Outcome{Entry: entry, Items: []model.Item{it}, Totals: totals}), nil
		},
	}, nil
}
