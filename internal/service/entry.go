package service

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saadjs/nutrilog/internal/model"
)

const dateLayout = "2006-01-02"

// DateKey is the local calendar date of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(dateLayout)
}

func validateDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", date)
	}
	return nil
}

// CreateEntry records one logged phrase. Missing ids and timestamps are
// filled in.
func CreateEntry(db *sql.DB, e model.Entry) (model.Entry, error) {
	e.RawText = strings.TrimSpace(e.RawText)
	if e.RawText == "" {
		return model.Entry{}, fmt.Errorf("entry text is required")
	}
	if err := validateDate(e.DateLocal); err != nil {
		return model.Entry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	_, err := db.Exec(`INSERT INTO entries(id, ts, date_local, raw_text) VALUES(?, ?, ?, ?)`,
		e.ID, e.Timestamp.Format(time.RFC3339), e.DateLocal, e.RawText)
	if err != nil {
		return model.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

func ListEntries(db *sql.DB, date string) ([]model.Entry, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT id, ts, date_local, raw_text FROM entries WHERE date_local = ? ORDER BY ts ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	out := make([]model.Entry, 0)
	for rows.Next() {
		var e model.Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.DateLocal, &e.RawText); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse entry timestamp: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// AppendItem inserts an item and adds its macros to the day's totals in one
// transaction. Nil macros count as zero.
func AppendItem(db *sql.DB, it model.Item) (model.Item, error) {
	if it.Grams <= 0 {
		return model.Item{}, fmt.Errorf("item grams must be > 0")
	}
	if it.Confidence < 0 || it.Confidence > 1 {
		return model.Item{}, fmt.Errorf("item confidence must be within [0, 1]")
	}
	if strings.TrimSpace(it.DisplayName) == "" {
		return model.Item{}, fmt.Errorf("item display name is required")
	}
	if it.ID == "" {
		it.ID = uuid.New().String()
	}

	tx, err := db.Begin()
	if err != nil {
		return model.Item{}, fmt.Errorf("begin item tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entryDate string
	if err := tx.QueryRow(`SELECT date_local FROM entries WHERE id = ?`, it.EntryID).Scan(&entryDate); err != nil {
		if err == sql.ErrNoRows {
			return model.Item{}, fmt.Errorf("entry %s does not exist", it.EntryID)
		}
		return model.Item{}, fmt.Errorf("lookup entry %s: %w", it.EntryID, err)
	}
	if it.DateLocal == "" {
		it.DateLocal = entryDate
	}
	if it.DateLocal != entryDate {
		return model.Item{}, fmt.Errorf("item date %s does not match entry date %s", it.DateLocal, entryDate)
	}

	m := it.Macros
	_, err = tx.Exec(`
INSERT INTO items(id, entry_id, product_id, date_local, grams, kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, display_name, note)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, it.ID, it.EntryID, it.ProductID, it.DateLocal, it.Grams,
		nullableInt(m.Kcal), nullableFloat(m.ProteinG), nullableFloat(m.CarbsG), nullableFloat(m.FatG), nullableFloat(m.FiberG),
		it.Confidence, strings.TrimSpace(it.DisplayName), it.Note)
	if err != nil {
		return model.Item{}, fmt.Errorf("insert item: %w", err)
	}

	_, err = tx.Exec(`
INSERT INTO totals(date_local, kcal, protein_g, carbs_g, fat_g, fiber_g)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(date_local) DO UPDATE SET
  kcal=kcal + excluded.kcal,
  protein_g=protein_g + excluded.protein_g,
  carbs_g=carbs_g + excluded.carbs_g,
  fat_g=fat_g + excluded.fat_g,
  fiber_g=fiber_g + excluded.fiber_g
`, it.DateLocal, intOrZero(m.Kcal), floatOrZero(m.ProteinG), floatOrZero(m.CarbsG), floatOrZero(m.FatG), floatOrZero(m.FiberG))
	if err != nil {
		return model.Item{}, fmt.Errorf("update totals for %s: %w", it.DateLocal, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Item{}, fmt.Errorf("commit item tx: %w", err)
	}
	return it, nil
}

type ItemFilter struct {
	Date    string
	EntryID string
}

func ListItems(db *sql.DB, f ItemFilter) ([]model.Item, error) {
	query := `
SELECT i.id, i.entry_id, i.product_id, i.date_local, i.grams, i.kcal, i.protein_g, i.carbs_g, i.fat_g, i.fiber_g, i.confidence, i.display_name, i.note
FROM items i
JOIN entries e ON e.id = i.entry_id
WHERE 1=1`
	args := make([]any, 0, 2)
	if f.Date != "" {
		if err := validateDate(f.Date); err != nil {
			return nil, err
		}
		query += ` AND i.date_local = ?`
		args = append(args, f.Date)
	}
	if f.EntryID != "" {
		query += ` AND i.entry_id = ?`
		args = append(args, f.EntryID)
	}
	query += ` ORDER BY e.ts ASC, i.created_at ASC, i.rowid ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	out := make([]model.Item, 0)
	for rows.Next() {
		var it model.Item
		var kcal sql.NullInt64
		var protein, carbs, fat, fiber sql.NullFloat64
		if err := rows.Scan(&it.ID, &it.EntryID, &it.ProductID, &it.DateLocal, &it.Grams, &kcal, &protein, &carbs, &fat, &fiber, &it.Confidence, &it.DisplayName, &it.Note); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if kcal.Valid {
			v := int(kcal.Int64)
			it.Macros.Kcal = &v
		}
		it.Macros.ProteinG = nullFloatPtr(protein)
		it.Macros.CarbsG = nullFloatPtr(carbs)
		it.Macros.FatG = nullFloatPtr(fat)
		it.Macros.FiberG = nullFloatPtr(fiber)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// GetTotals returns the stored totals for a date, zero when nothing is logged.
func GetTotals(db *sql.DB, date string) (model.Totals, error) {
	if err := validateDate(date); err != nil {
		return model.Totals{}, err
	}
	t := model.Totals{DateLocal: date}
	err := db.QueryRow(`SELECT kcal, protein_g, carbs_g, fat_g, fiber_g FROM totals WHERE date_local = ?`, date).
		Scan(&t.Kcal, &t.ProteinG, &t.CarbsG, &t.FatG, &t.FiberG)
	if err == sql.ErrNoRows {
		return t, nil
	}
	if err != nil {
		return model.Totals{}, fmt.Errorf("get totals for %s: %w", date, err)
	}
	return t, nil
}

// SumItems folds a day's items into totals.
func SumItems(db *sql.DB, date string) (model.Totals, error) {
	if err := validateDate(date); err != nil {
		return model.Totals{}, err
	}
	t := model.Totals{DateLocal: date}
	err := db.QueryRow(`
SELECT
  COALESCE(SUM(kcal), 0),
  COALESCE(SUM(protein_g), 0),
  COALESCE(SUM(carbs_g), 0),
  COALESCE(SUM(fat_g), 0),
  COALESCE(SUM(fiber_g), 0)
FROM items
WHERE date_local = ?
`, date).Scan(&t.Kcal, &t.ProteinG, &t.CarbsG, &t.FatG, &t.FiberG)
	if err != nil {
		return model.Totals{}, fmt.Errorf("sum items for %s: %w", date, err)
	}
	return t, nil
}

// RecomputeTotals rewrites the stored totals for a date from its items.
func RecomputeTotals(db *sql.DB, date string) (model.Totals, error) {
	t, err := SumItems(db, date)
	if err != nil {
		return model.Totals{}, err
	}
	_, err = db.Exec(`
INSERT INTO totals(date_local, kcal, protein_g, carbs_g, fat_g, fiber_g)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(date_local) DO UPDATE SET
  kcal=excluded.kcal,
  protein_g=excluded.protein_g,
  carbs_g=excluded.carbs_g,
  fat_g=excluded.fat_g,
  fiber_g=excluded.fiber_g
`, t.DateLocal, t.Kcal, t.ProteinG, t.CarbsG, t.FatG, t.FiberG)
	if err != nil {
		return model.Totals{}, fmt.Errorf("write totals for %s: %w", date, err)
	}
	return t, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
