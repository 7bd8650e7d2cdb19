package service_test

import (
	"testing"

	"github.com/saadjs/nutrilog/internal/model"
	"github.com/saadjs/nutrilog/internal/service"
)

func TestRunDoctorHealthyDiary(t *testing.T) {
	t.Parallel()

	sqldb := newTestDB(t)
	entry, err := service.CreateEntry(sqldb, model.Entry{DateLocal: "2026-03-14", RawText: "oats"})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := service.AppendItem(sqldb, model.Item{EntryID: entry.ID, ProductID: "p", Grams: 50, Confidence: 1, DisplayName: "oats", Macros: model.Macros{Kcal: intPtr(190)}}); err != nil {
		t.Fatalf("append item: %v", err)
	}
	report, err := service.RunDoctor(sqldb, false)
	if err != nil {
		t.Fatalf("run doctor: %v", err)
	}
	if !report.Healthy() {
		t.Fatalf("expected healthy report, got %+v", report)
	}
}

func TestRunDoctorFixesDriftAndDates(t *testing.T) {
	t.Parallel()

	sqldb := newTestDB(t)
	entry, err := service.CreateEntry(sqldb, model.Entry{DateLocal: "2026-03-14", RawText: "oats"})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	item, err := service.AppendItem(sqldb, model.Item{EntryID: entry.ID, ProductID: "p", Grams: 50, Confidence: 1, DisplayName: "oats", Macros: model.Macros{Kcal: intPtr(190), ProteinG: floatPtr(6.5)}})
	if err != nil {
		t.Fatalf("append item: %v", err)
	}
	if _, err := sqldb.Exec(`UPDATE items SET date_local = '2026-03-13' WHERE id = ?`, item.ID); err != nil {
		t.Fatalf("corrupt item date: %v", err)
	}
	if _, err := sqldb.Exec(`INSERT INTO totals(date_local, kcal) VALUES('2026-03-12', 400)`); err != nil {
		t.Fatalf("insert stray totals: %v", err)
	}

	report, err := service.RunDoctor(sqldb, false)
	if err != nil {
		t.Fatalf("run doctor: %v", err)
	}
	if report.DateMismatches != 1 || len(report.DriftedTotals) != 3 {
		t.Fatalf("unexpected report %+v", report)
	}

	report, err = service.RunDoctor(sqldb, true)
	if err != nil {
		t.Fatalf("run doctor fix: %v", err)
	}
	if report.FixedItems != 1 || report.RecomputedDays != 1 {
		t.Fatalf("unexpected fix report %+v", report)
	}

	after, err := service.RunDoctor(sqldb, false)
	if err != nil {
		t.Fatalf("run doctor again: %v", err)
	}
	if !after.Healthy() {
		t.Fatalf("expected healthy after fix, got %+v", after)
	}
	totals, err := service.GetTotals(sqldb, "2026-03-14")
	if err != nil {
		t.Fatalf("get totals: %v", err)
	}
	if totals.Kcal != 190 || totals.ProteinG != 6.5 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}
