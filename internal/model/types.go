package model

import "time"

// Nutriments is a sparse nutrient record keyed by provider field names such as
// "energy-kcal_100g", "proteins_serving" or "serving_size_g".
type Nutriments map[string]float64

type Product struct {
	ID              string
	Source          string
	SourceID        string
	Name            string
	Brand           string
	Barcode         string
	DefaultServingG *float64
	Nutriments      Nutriments
	Attribution     string
}

// Label is the display name: brand and name joined when a brand is known.
func (p Product) Label() string {
	if p.Brand == "" {
		return p.Name
	}
	return p.Brand + " " + p.Name
}

type Serving struct {
	ProductID string
	Label     string
	Grams     float64
}

type Entry struct {
	ID        string
	Timestamp time.Time
	DateLocal string
	RawText   string
}

// Macros holds projected nutrient amounts. A nil field means the value could
// not be derived from the source data.
type Macros struct {
	Kcal     *int
	ProteinG *float64
	CarbsG   *float64
	FatG     *float64
	FiberG   *float64
}

type Item struct {
	ID          string
	EntryID     string
	ProductID   string
	DateLocal   string
	Grams       float64
	Macros      Macros
	Confidence  float64
	DisplayName string
	Note        string
}

type Totals struct {
	DateLocal string
	Kcal      int
	ProteinG  float64
	CarbsG    float64
	FatG      float64
	FiberG    float64
}

type Alias struct {
	Phrase        string
	ProductID     string
	ServingLabel  string
	GramsOverride *float64
	UpdatedAt     time.Time
}

type Targets struct {
	Kcal     int
	ProteinG float64
	CarbsG   float64
	FatG     float64
	FiberG   float64
}

// FoodDescriptor is one food extracted from a free-text phrase by the parser.
type FoodDescriptor struct {
	Name  string
	Brand string
	Qty   *float64
	Unit  string
	Grams *float64
	Notes string
}

type ProviderSearchCacheEntry struct {
	Provider    string
	Query       string
	Limit       int
	ResultCount int
	FetchedAt   time.Time
	ExpiresAt   time.Time
}
