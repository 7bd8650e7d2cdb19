package service_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/saadjs/nutrilog/internal/db"
	"github.com/saadjs/nutrilog/internal/model"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nutrilog.db")
	sqldb, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(sqldb); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	return sqldb
}

var fixedNow = time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC)

type fakeProvider struct {
	name     string
	products []model.Product
	err      error
	delay    time.Duration

	mu      sync.Mutex
	calls   int
	queries []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SearchFoods(ctx context.Context, query string, limit int) ([]model.Product, error) {
	f.mu.Lock()
	f.calls++
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.products
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeParser struct {
	items []model.FoodDescriptor
	err   error
	calls int
}

func (f *fakeParser) Parse(_ context.Context, _ string) ([]model.FoodDescriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func completeNutriments(kcal, protein, carbs, fat float64) model.Nutriments {
	return model.Nutriments{
		"energy-kcal_100g":   kcal,
		"proteins_100g":      protein,
		"carbohydrates_100g": carbs,
		"fat_100g":           fat,
	}
}

func floatPtr(v float64) *float64 { return &v }
