package db

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		sql: `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL CHECK(source IN ('off', 'fdc', 'nutrix', 'upc', 'custom', 'parsed')),
  source_id TEXT NOT NULL,
  name TEXT NOT NULL,
  brand TEXT NOT NULL DEFAULT '',
  barcode TEXT NOT NULL DEFAULT '',
  default_serving_g REAL CHECK(default_serving_g IS NULL OR default_serving_g > 0),
  nutriments_json TEXT NOT NULL DEFAULT '{}',
  attribution TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_products_barcode ON products(barcode);

CREATE TABLE IF NOT EXISTS servings (
  product_id TEXT NOT NULL,
  label TEXT NOT NULL,
  grams REAL NOT NULL CHECK(grams > 0),
  PRIMARY KEY(product_id, label),
  FOREIGN KEY(product_id) REFERENCES products(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_servings_product_id ON servings(product_id);

CREATE TABLE IF NOT EXISTS entries (
  id TEXT PRIMARY KEY,
  ts DATETIME NOT NULL,
  date_local TEXT NOT NULL,
  raw_text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_date_local ON entries(date_local);

CREATE TABLE IF NOT EXISTS items (
  id TEXT PRIMARY KEY,
  entry_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  date_local TEXT NOT NULL,
  grams REAL NOT NULL CHECK(grams > 0),
  kcal INTEGER,
  protein_g REAL,
  carbs_g REAL,
  fat_g REAL,
  fiber_g REAL,
  confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
  display_name TEXT NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(entry_id) REFERENCES entries(id)
);

CREATE INDEX IF NOT EXISTS idx_items_date_local ON items(date_local);
CREATE INDEX IF NOT EXISTS idx_items_entry_id ON items(entry_id);

CREATE TABLE IF NOT EXISTS totals (
  date_local TEXT PRIMARY KEY,
  kcal INTEGER NOT NULL DEFAULT 0,
  protein_g REAL NOT NULL DEFAULT 0,
  carbs_g REAL NOT NULL DEFAULT 0,
  fat_g REAL NOT NULL DEFAULT 0,
  fiber_g REAL NOT NULL DEFAULT 0
);
`,
	},
	{
		version: 2,
		name:    "aliases",
		sql: `
CREATE TABLE IF NOT EXISTS aliases (
  phrase TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  serving_label TEXT NOT NULL DEFAULT '',
  grams_override REAL CHECK(grams_override IS NULL OR grams_override > 0),
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(product_id) REFERENCES products(id)
);

CREATE INDEX IF NOT EXISTS idx_aliases_product_id ON aliases(product_id);
`,
	},
	{
		version: 3,
		name:    "targets",
		sql: `
CREATE TABLE IF NOT EXISTS targets (
  id INTEGER PRIMARY KEY CHECK(id = 1),
  kcal INTEGER NOT NULL CHECK(kcal >= 0),
  protein_g REAL NOT NULL CHECK(protein_g >= 0),
  carbs_g REAL NOT NULL CHECK(carbs_g >= 0),
  fat_g REAL NOT NULL CHECK(fat_g >= 0),
  fiber_g REAL NOT NULL CHECK(fiber_g >= 0),
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		version: 4,
		name:    "app_config",
		sql: `
CREATE TABLE IF NOT EXISTS app_config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		version: 5,
		name:    "provider_search_cache",
		sql: `
CREATE TABLE IF NOT EXISTS provider_search_cache (
  provider TEXT NOT NULL,
  query TEXT NOT NULL,
  result_limit INTEGER NOT NULL CHECK(result_limit > 0),
  payload_json TEXT NOT NULL,
  fetched_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  PRIMARY KEY(provider, query, result_limit)
);

CREATE INDEX IF NOT EXISTS idx_provider_search_cache_expires_at ON provider_search_cache(expires_at);
`,
	},
}

func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration version %d: %w", m.version, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration version %d: %w", m.version, err)
		}
	}

	if _, err := db.Exec(`
INSERT OR IGNORE INTO targets(id, kcal, protein_g, carbs_g, fat_g, fiber_g)
VALUES(1, 2400, 160, 260, 80, 30)
`); err != nil {
		return fmt.Errorf("seed default targets: %w", err)
	}

	return nil
}
