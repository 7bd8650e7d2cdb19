package service

import (
	"database/sql"
	"fmt"

	"github.com/saadjs/nutrilog/internal/model"
)

func GetTargets(db *sql.DB) (model.Targets, error) {
	var t model.Targets
	err := db.QueryRow(`SELECT kcal, protein_g, carbs_g, fat_g, fiber_g FROM targets WHERE id = 1`).
		Scan(&t.Kcal, &t.ProteinG, &t.CarbsG, &t.FatG, &t.FiberG)
	if err != nil {
		return model.Targets{}, fmt.Errorf("get targets: %w", err)
	}
	return t, nil
}

func SetTargets(db *sql.DB, t model.Targets) error {
	if err := validateNonNegativeInt("kcal", t.Kcal); err != nil {
		return err
	}
	if err := validateMacros(t.ProteinG, t.CarbsG, t.FatG, t.FiberG); err != nil {
		return err
	}
	_, err := db.Exec(`
INSERT INTO targets(id, kcal, protein_g, carbs_g, fat_g, fiber_g, updated_at)
VALUES(1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  kcal=excluded.kcal,
  protein_g=excluded.protein_g,
  carbs_g=excluded.carbs_g,
  fat_g=excluded.fat_g,
  fiber_g=excluded.fiber_g,
  updated_at=excluded.updated_at
`, t.Kcal, t.ProteinG, t.CarbsG, t.FatG, t.FiberG)
	if err != nil {
		return fmt.Errorf("set targets: %w", err)
	}
	return nil
}
