package service

import (
	"database/sql"
	"fmt"
)

type DoctorReport struct {
	OrphanItems     int      `json:"orphan_items"`
	DateMismatches  int      `json:"date_mismatches"`
	DriftedTotals   []string `json:"drifted_totals,omitempty"`
	DanglingAliases int      `json:"dangling_aliases"`
	FixedItems      int      `json:"fixed_items,omitempty"`
	RecomputedDays  int      `json:"recomputed_days,omitempty"`
}

func (r DoctorReport) Healthy() bool {
	return r.OrphanItems == 0 && r.DateMismatches == 0 && len(r.DriftedTotals) == 0 && r.DanglingAliases == 0
}

// RunDoctor checks diary consistency. With fix it drops items without an
// entry, moves items onto their entry's date, removes aliases to missing
// products and rebuilds drifted totals from items.
func RunDoctor(db *sql.DB, fix bool) (DoctorReport, error) {
	report := DoctorReport{}
	if err := db.QueryRow(`
SELECT COUNT(1) FROM items i LEFT JOIN entries e ON e.id = i.entry_id WHERE e.id IS NULL
`).Scan(&report.OrphanItems); err != nil {
		return report, fmt.Errorf("doctor orphan check: %w", err)
	}
	if err := db.QueryRow(`
SELECT COUNT(1) FROM items i JOIN entries e ON e.id = i.entry_id WHERE i.date_local <> e.date_local
`).Scan(&report.DateMismatches); err != nil {
		return report, fmt.Errorf("doctor date check: %w", err)
	}
	if err := db.QueryRow(`
SELECT COUNT(1) FROM aliases a LEFT JOIN products p ON p.id = a.product_id WHERE p.id IS NULL
`).Scan(&report.DanglingAliases); err != nil {
		return report, fmt.Errorf("doctor alias check: %w", err)
	}
	drifted, err := driftedTotals(db)
	if err != nil {
		return report, err
	}
	report.DriftedTotals = drifted

	if !fix || report.Healthy() {
		return report, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return report, fmt.Errorf("doctor fix begin tx: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM items WHERE entry_id NOT IN (SELECT id FROM entries)`)
	if err != nil {
		_ = tx.Rollback()
		return report, fmt.Errorf("doctor fix orphan items: %w", err)
	}
	orphans, _ := res.RowsAffected()
	res, err = tx.Exec(`
UPDATE items SET date_local = (SELECT e.date_local FROM entries e WHERE e.id = items.entry_id)
WHERE date_local <> (SELECT e.date_local FROM entries e WHERE e.id = items.entry_id)
`)
	if err != nil {
		_ = tx.Rollback()
		return report, fmt.Errorf("doctor fix item dates: %w", err)
	}
	moved, _ := res.RowsAffected()
	if _, err := tx.Exec(`DELETE FROM aliases WHERE product_id NOT IN (SELECT id FROM products)`); err != nil {
		_ = tx.Rollback()
		return report, fmt.Errorf("doctor fix aliases: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("doctor fix commit: %w", err)
	}
	report.FixedItems = int(orphans + moved)

	// Item fixes can shift totals on dates that were consistent before.
	days, err := driftedTotals(db)
	if err != nil {
		return report, err
	}
	for _, day := range days {
		if _, err := RecomputeTotals(db, day); err != nil {
			return report, err
		}
		report.RecomputedDays++
	}
	return report, nil
}

// driftedTotals lists dates whose stored totals disagree with their items.
func driftedTotals(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
WITH sums AS (
  SELECT date_local,
         COALESCE(SUM(kcal), 0) AS kcal,
         COALESCE(SUM(protein_g), 0) AS protein_g,
         COALESCE(SUM(carbs_g), 0) AS carbs_g,
         COALESCE(SUM(fat_g), 0) AS fat_g,
         COALESCE(SUM(fiber_g), 0) AS fiber_g
  FROM items GROUP BY date_local
),
days AS (
  SELECT date_local FROM sums
  UNION
  SELECT date_local FROM totals
)
SELECT d.date_local
FROM days d
LEFT JOIN sums s ON s.date_local = d.date_local
LEFT JOIN totals t ON t.date_local = d.date_local
WHERE COALESCE(s.kcal, 0) <> COALESCE(t.kcal, 0)
   OR ABS(COALESCE(s.protein_g, 0) - COALESCE(t.protein_g, 0)) > 0.05
   OR ABS(COALESCE(s.carbs_g, 0) - COALESCE(t.carbs_g, 0)) > 0.05
   OR ABS(COALESCE(s.fat_g, 0) - COALESCE(t.fat_g, 0)) > 0.05
   OR ABS(COALESCE(s.fiber_g, 0) - COALESCE(t.fiber_g, 0)) > 0.05
ORDER BY d.date_local ASC
`)
	if err != nil {
		return nil, fmt.Errorf("doctor totals check: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan drifted day: %w", err)
		}
		out = append(out, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drifted days: %w", err)
	}
	return out, nil
}
