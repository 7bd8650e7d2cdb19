package service

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/saadjs/nutrilog/internal/model"
)

// SetAlias binds a phrase to a product, replacing any existing binding for
// the same normalized phrase.
func SetAlias(db *sql.DB, a model.Alias) (model.Alias, error) {
	a.Phrase = NormalizePhrase(a.Phrase)
	if a.Phrase == "" {
		return model.Alias{}, fmt.Errorf("alias phrase is required")
	}
	if strings.TrimSpace(a.ProductID) == "" {
		return model.Alias{}, fmt.Errorf("alias product id is required")
	}
	if a.GramsOverride != nil && *a.GramsOverride <= 0 {
		return model.Alias{}, fmt.Errorf("alias grams override must be > 0")
	}
	a.ServingLabel = strings.TrimSpace(a.ServingLabel)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	a.UpdatedAt = a.UpdatedAt.UTC()

	_, err := db.Exec(`
INSERT INTO aliases(phrase, product_id, serving_label, grams_override, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(phrase) DO UPDATE SET
  product_id=excluded.product_id,
  serving_label=excluded.serving_label,
  grams_override=excluded.grams_override,
  updated_at=excluded.updated_at
`, a.Phrase, a.ProductID, a.ServingLabel, nullableFloat(a.GramsOverride), a.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return model.Alias{}, fmt.Errorf("set alias %q: %w", a.Phrase, err)
	}
	return a, nil
}

func GetAlias(db *sql.DB, phrase string) (model.Alias, bool, error) {
	phrase = NormalizePhrase(phrase)
	row := db.QueryRow(aliasSelect+` WHERE phrase = ?`, phrase)
	a, err := scanAlias(row)
	if err == sql.ErrNoRows {
		return model.Alias{}, false, nil
	}
	if err != nil {
		return model.Alias{}, false, fmt.Errorf("get alias %q: %w", phrase, err)
	}
	return a, true, nil
}

func DeleteAlias(db *sql.DB, phrase string) error {
	phrase = NormalizePhrase(phrase)
	res, err := db.Exec(`DELETE FROM aliases WHERE phrase = ?`, phrase)
	if err != nil {
		return fmt.Errorf("delete alias %q: %w", phrase, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alias rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alias %q: %w", phrase, ErrAliasNotFound)
	}
	return nil
}

func ListAliases(db *sql.DB) ([]model.Alias, error) {
	rows, err := db.Query(aliasSelect + ` ORDER BY phrase ASC`)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()
	out := make([]model.Alias, 0)
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return out, nil
}

// ResolveAliasGrams picks the grams for an alias hit: the override, else a
// serving on the bound product whose label matches case-insensitively.
// It reports false when the caller has to ask.
func ResolveAliasGrams(db *sql.DB, a model.Alias) (float64, bool, error) {
	if a.GramsOverride != nil && *a.GramsOverride > 0 {
		return *a.GramsOverride, true, nil
	}
	if a.ServingLabel == "" {
		return 0, false, nil
	}
	servings, err := ListServings(db, a.ProductID)
	if err != nil {
		return 0, false, err
	}
	for _, s := range servings {
		if strings.EqualFold(s.Label, a.ServingLabel) {
			return s.Grams, true, nil
		}
	}
	return 0, false, nil
}

const aliasSelect = `SELECT phrase, product_id, serving_label, grams_override, updated_at FROM aliases`

func scanAlias(row rowScanner) (model.Alias, error) {
	var a model.Alias
	var grams sql.NullFloat64
	var updated string
	if err := row.Scan(&a.Phrase, &a.ProductID, &a.ServingLabel, &grams, &updated); err != nil {
		return model.Alias{}, err
	}
	a.GramsOverride = nullFloatPtr(grams)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return a, nil
}
