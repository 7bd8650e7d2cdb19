package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saadjs/nutrilog/internal/model"
)

const (
	DefaultProviderSearchTTL = 7 * 24 * time.Hour
	defaultProviderTimeout   = 12 * time.Second
	defaultSearchLimit       = 6
)

// DefaultSearchLimits caps results per provider.
var DefaultSearchLimits = map[string]int{
	ProviderOpenFoodFacts: 10,
	ProviderNutritionix:   6,
	ProviderUSDA:          6,
}

// Merger fans a descriptor out to every provider and ranks the pooled
// candidates by confidence.
type Merger struct {
	Providers []Provider
	Bias      SourceBias
	Limits    map[string]int
	Timeout   time.Duration
	Log       *zap.Logger
}

// Search returns the candidate pool ranked by descending confidence. Ties keep
// provider order, then the provider's own result order. A failing provider
// contributes no candidates.
func (m *Merger) Search(ctx context.Context, d model.FoodDescriptor) ([]Candidate, error) {
	query := joinNonEmpty(d.Brand, d.Name)
	if query == "" {
		return nil, nil
	}
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}

	perProvider := make([][]Candidate, len(m.Providers))
	var g errgroup.Group
	for i, p := range m.Providers {
		i, p := i, p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, m.timeout())
			defer cancel()
			products, err := p.SearchFoods(pctx, query, m.limit(p.Name()))
			if err != nil {
				log.Warn("provider search failed",
					zap.String("provider", p.Name()),
					zap.String("query", query),
					zap.Error(fmt.Errorf("%w: %v", ErrProviderUnavailable, err)))
				return nil
			}
			bias := m.Bias[p.Name()]
			cands := make([]Candidate, 0, len(products))
			for _, prod := range products {
				score := ScoreCandidate(d, prod, bias)
				cands = append(cands, Candidate{
					Product:    prod,
					Provider:   p.Name(),
					Confidence: score.Score,
					Reasons:    score.Reasons,
				})
			}
			perProvider[i] = cands
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := make([]Candidate, 0, 16)
	for _, cands := range perProvider {
		pool = append(pool, cands...)
	}
	pool = preferEnergyBearing(pool)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Confidence > pool[j].Confidence
	})
	log.Debug("merged candidates", zap.String("query", query), zap.Int("count", len(pool)))
	return pool, nil
}

func (m *Merger) timeout() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return defaultProviderTimeout
}

func (m *Merger) limit(provider string) int {
	if n, ok := m.Limits[provider]; ok && n > 0 {
		return n
	}
	if n, ok := DefaultSearchLimits[provider]; ok {
		return n
	}
	return defaultSearchLimit
}

// preferEnergyBearing keeps only candidates with energy data when at least
// one has it.
func preferEnergyBearing(pool []Candidate) []Candidate {
	withEnergy := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if HasEnergy(c.Product.Nutriments) {
			withEnergy = append(withEnergy, c)
		}
	}
	if len(withEnergy) == 0 {
		return pool
	}
	return withEnergy
}

// CachedProvider serves repeated searches from provider_search_cache until
// they expire.
type CachedProvider struct {
	DB       *sql.DB
	Provider Provider
	TTL      time.Duration
	Now      func() time.Time
}

func (c *CachedProvider) Name() string { return c.Provider.Name() }

func (c *CachedProvider) SearchFoods(ctx context.Context, query string, limit int) ([]model.Product, error) {
	now := c.now()
	cached, found, err := lookupProviderSearchCache(c.DB, c.Name(), query, limit, now)
	if err != nil {
		return nil, err
	}
	if found {
		return cached, nil
	}
	products, err := c.Provider.SearchFoods(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultProviderSearchTTL
	}
	if err := upsertProviderSearchCache(c.DB, c.Name(), query, limit, products, now, now.Add(ttl)); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *CachedProvider) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// WithSearchCache wraps every provider with the sqlite search cache.
func WithSearchCache(db *sql.DB, providers []Provider, ttl time.Duration) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, &CachedProvider{DB: db, Provider: p, TTL: ttl})
	}
	return out
}

func canonicalQuery(query string) string {
	return strings.Join(tokenizeOrdered(query), " ")
}

// tokenizeOrdered is tokenize without sorting or de-duplication.
func tokenizeOrdered(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Fields(tokenSplitRe.ReplaceAllString(s, " "))
}

func lookupProviderSearchCache(db *sql.DB, provider, query string, limit int, now time.Time) ([]model.Product, bool, error) {
	var raw, expiresAtRaw string
	err := db.QueryRow(`
SELECT payload_json, expires_at
FROM provider_search_cache
WHERE provider = ? AND query = ? AND result_limit = ?
`, provider, canonicalQuery(query), limit).Scan(&raw, &expiresAtRaw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup provider search cache: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresAtRaw)
	if err != nil {
		return nil, false, fmt.Errorf("parse provider search cache expiry: %w", err)
	}
	if !now.Before(expiresAt) {
		return nil, false, nil
	}
	var products []model.Product
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		return nil, false, fmt.Errorf("decode provider search cache: %w", err)
	}
	return products, true, nil
}

func upsertProviderSearchCache(db *sql.DB, provider, query string, limit int, products []model.Product, fetchedAt, expiresAt time.Time) error {
	if products == nil {
		products = []model.Product{}
	}
	payload, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal provider search cache payload: %w", err)
	}
	_, err = db.Exec(`
INSERT INTO provider_search_cache(provider, query, result_limit, payload_json, fetched_at, expires_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, query, result_limit) DO UPDATE SET
  payload_json=excluded.payload_json,
  fetched_at=excluded.fetched_at,
  expires_at=excluded.expires_at
`, provider, canonicalQuery(query), limit, string(payload), fetchedAt.UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert provider search cache: %w", err)
	}
	return nil
}

func ListProviderSearchCache(db *sql.DB, provider string, limit int) ([]model.ProviderSearchCacheEntry, error) {
	provider = normalizeProvider(provider)
	if limit <= 0 {
		limit = 100
	}
	base := `SELECT provider, query, result_limit, payload_json, fetched_at, expires_at FROM provider_search_cache`
	args := make([]any, 0, 2)
	if provider != "" {
		base += " WHERE provider = ?"
		args = append(args, provider)
	}
	base += " ORDER BY fetched_at DESC LIMIT ?"
	args = append(args, limit)
	rows, err := db.Query(base, args...)
	if err != nil {
		return nil, fmt.Errorf("list provider search cache: %w", err)
	}
	defer rows.Close()
	out := make([]model.ProviderSearchCacheEntry, 0)
	for rows.Next() {
		var item model.ProviderSearchCacheEntry
		var payload, fetched, expires string
		if err := rows.Scan(&item.Provider, &item.Query, &item.Limit, &payload, &fetched, &expires); err != nil {
			return nil, fmt.Errorf("scan provider search cache: %w", err)
		}
		var products []json.RawMessage
		if err := json.Unmarshal([]byte(payload), &products); err == nil {
			item.ResultCount = len(products)
		}
		item.FetchedAt, _ = time.Parse(time.RFC3339, fetched)
		item.ExpiresAt, _ = time.Parse(time.RFC3339, expires)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider search cache: %w", err)
	}
	return out, nil
}

// PurgeProviderSearchCache deletes cached searches. With expiredOnly it only
// removes rows past their expiry.
func PurgeProviderSearchCache(db *sql.DB, provider string, expiredOnly bool, now time.Time) (int64, error) {
	provider = normalizeProvider(provider)
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, provider)
	}
	if expiredOnly {
		clauses = append(clauses, "expires_at <= ?")
		args = append(args, now.UTC().Format(time.RFC3339))
	}
	stmt := `DELETE FROM provider_search_cache`
	if len(clauses) > 0 {
		stmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	res, err := db.Exec(stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge provider search cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("provider search cache rows affected: %w", err)
	}
	return affected, nil
}
