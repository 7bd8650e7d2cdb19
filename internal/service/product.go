package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/saadjs/nutrilog/internal/model"
)

// UpsertProduct stores or refreshes a product by id.
func UpsertProduct(db *sql.DB, p model.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product name is required")
	}
	nutriments := p.Nutriments
	if nutriments == nil {
		nutriments = model.Nutriments{}
	}
	payload, err := json.Marshal(nutriments)
	if err != nil {
		return fmt.Errorf("marshal nutriments: %w", err)
	}
	_, err = db.Exec(`
INSERT INTO products(id, source, source_id, name, brand, barcode, default_serving_g, nutriments_json, attribution, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  brand=excluded.brand,
  barcode=excluded.barcode,
  default_serving_g=excluded.default_serving_g,
  nutriments_json=excluded.nutriments_json,
  attribution=excluded.attribution,
  updated_at=excluded.updated_at
`, p.ID, p.Source, p.SourceID, strings.TrimSpace(p.Name), strings.TrimSpace(p.Brand), strings.TrimSpace(p.Barcode),
		nullableFloat(p.DefaultServingG), string(payload), p.Attribution)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

func GetProduct(db *sql.DB, id string) (model.Product, error) {
	row := db.QueryRow(productSelect+` WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return model.Product{}, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// GetProductByBarcode returns the most recently updated product for a barcode.
func GetProductByBarcode(db *sql.DB, barcode string) (model.Product, bool, error) {
	row := db.QueryRow(productSelect+` WHERE barcode = ? ORDER BY updated_at DESC LIMIT 1`, barcode)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return model.Product{}, false, nil
	}
	if err != nil {
		return model.Product{}, false, fmt.Errorf("get product by barcode %s: %w", barcode, err)
	}
	return p, true, nil
}

const productSelect = `
SELECT id, source, source_id, name, brand, barcode, default_serving_g, nutriments_json, attribution
FROM products`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var p model.Product
	var serving sql.NullFloat64
	var raw string
	if err := row.Scan(&p.ID, &p.Source, &p.SourceID, &p.Name, &p.Brand, &p.Barcode, &serving, &raw, &p.Attribution); err != nil {
		return model.Product{}, err
	}
	if serving.Valid {
		v := serving.Float64
		p.DefaultServingG = &v
	}
	p.Nutriments = model.Nutriments{}
	if err := json.Unmarshal([]byte(raw), &p.Nutriments); err != nil {
		return model.Product{}, fmt.Errorf("decode nutriments for %s: %w", p.ID, err)
	}
	return p, nil
}

func UpsertServing(db *sql.DB, s model.Serving) error {
	label := strings.TrimSpace(s.Label)
	if label == "" {
		return fmt.Errorf("serving label is required")
	}
	if s.Grams <= 0 {
		return fmt.Errorf("serving grams must be > 0")
	}
	_, err := db.Exec(`
INSERT INTO servings(product_id, label, grams)
VALUES(?, ?, ?)
ON CONFLICT(product_id, label) DO UPDATE SET grams=excluded.grams
`, s.ProductID, label, s.Grams)
	if err != nil {
		return fmt.Errorf("upsert serving %q for %s: %w", label, s.ProductID, err)
	}
	return nil
}

func ListServings(db *sql.DB, productID string) ([]model.Serving, error) {
	rows, err := db.Query(`SELECT product_id, label, grams FROM servings WHERE product_id = ? ORDER BY label ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list servings: %w", err)
	}
	defer rows.Close()
	out := make([]model.Serving, 0)
	for rows.Next() {
		var s model.Serving
		if err := rows.Scan(&s.ProductID, &s.Label, &s.Grams); err != nil {
			return nil, fmt.Errorf("scan serving: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servings: %w", err)
	}
	return out, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
