package service

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/saadjs/nutrilog/internal/model"
)

type MacroProgress struct {
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Consumed  float64 `json:"consumed"`
	Target    float64 `json:"target"`
	Remaining float64 `json:"remaining"`
}

// Status renders the remaining amount as "X left" or "over by X".
func (m MacroProgress) Status() string {
	if m.Remaining >= 0 {
		return m.format(m.Remaining) + " left"
	}
	return "over by " + m.format(-m.Remaining)
}

func (m MacroProgress) format(v float64) string {
	if m.Unit == "kcal" {
		return strconv.Itoa(int(v)) + " kcal"
	}
	return strconv.FormatFloat(round1(v), 'f', -1, 64) + " " + m.Unit
}

type TodayStatus struct {
	Date     string          `json:"date"`
	Items    int             `json:"items"`
	Totals   model.Totals    `json:"totals"`
	Targets  model.Targets   `json:"targets"`
	Progress []MacroProgress `json:"progress"`
}

// TodaySummary compares a day's totals with the targets.
func TodaySummary(db *sql.DB, date string) (*TodayStatus, error) {
	totals, err := GetTotals(db, date)
	if err != nil {
		return nil, err
	}
	targets, err := GetTargets(db)
	if err != nil {
		return nil, err
	}
	var items int
	if err := db.QueryRow(`SELECT COUNT(1) FROM items WHERE date_local = ?`, date).Scan(&items); err != nil {
		return nil, fmt.Errorf("count items for %s: %w", date, err)
	}

	status := &TodayStatus{Date: date, Items: items, Totals: totals, Targets: targets}
	status.Progress = []MacroProgress{
		progress("kcal", "kcal", float64(totals.Kcal), float64(targets.Kcal)),
		progress("protein", "g", totals.ProteinG, targets.ProteinG),
		progress("carbs", "g", totals.CarbsG, targets.CarbsG),
		progress("fat", "g", totals.FatG, targets.FatG),
		progress("fiber", "g", totals.FiberG, targets.FiberG),
	}
	return status, nil
}

func progress(name, unit string, consumed, target float64) MacroProgress {
	return MacroProgress{
		Name:      name,
		Unit:      unit,
		Consumed:  consumed,
		Target:    target,
		Remaining: round1(target - consumed),
	}
}
