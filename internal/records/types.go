// Package records defines the canonical market-record schema and the
// data-hygiene funnel that turns raw listing feeds into validated records.
//
// Every downstream component of the valuation engine consumes the
// CleanRecord type produced here. The funnel never fails: malformed input
// silently shrinks the usable pool instead of raising errors.
package records

import (
	"time"
)

// Status is the canonical listing status of a market record.
type Status int

const (
	StatusUnknown Status = iota
	StatusToBeBuilt
	StatusModel
	StatusSpec
	StatusActive
	StatusPending
	StatusSold
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSold:
		return "sold"
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusSpec:
		return "spec"
	case StatusModel:
		return "model"
	case StatusToBeBuilt:
		return "to_be_built"
	default:
		return "unknown"
	}
}

// Reliability scores how trustworthy a record's price is as a market
// signal. Closed sales carry full weight; unbuilt inventory the least.
func (s Status) Reliability() float64 {
	switch s {
	case StatusSold:
		return 100
	case StatusPending:
		return 85
	case StatusActive:
		return 75
	case StatusSpec, StatusModel:
		return 60
	case StatusToBeBuilt:
		return 50
	default:
		return 50
	}
}

// IsNewConstruction reports whether the status implies builder inventory.
func (s Status) IsNewConstruction() bool {
	switch s {
	case StatusSpec, StatusModel, StatusToBeBuilt:
		return true
	default:
		return false
	}
}

// RawRecord is the loosely-typed input shape supplied by the data layer.
// Numeric fields use zero to mean "missing"; coordinates use nil. Raw
// records are never mutated after ingestion.
type RawRecord struct {
	ID            string   `json:"id"`
	Price         float64  `json:"price"`
	Sqft          float64  `json:"sqft"`
	Beds          float64  `json:"beds"`
	BathsFull     float64  `json:"baths_full"`
	BathsHalf     float64  `json:"baths_half"`
	Garage        float64  `json:"garage"`
	LotSqft       float64  `json:"lot_sqft"`
	YearBuilt     int      `json:"year_built"`
	Status        string   `json:"status"`
	Address       string   `json:"address"`
	Subdivision   string   `json:"subdivision"`
	SchoolZone    string   `json:"school_zone"`
	ListingID     string   `json:"listing_id"`
	PlanName      string   `json:"plan_name"`
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
	ListDate      string   `json:"list_date,omitempty"`
	SoldDate      string   `json:"sold_date,omitempty"`
	PropertyType  string   `json:"property_type"`
	BuilderName   string   `json:"builder_name"`
	CommunityName string   `json:"community_name"`
}

// CleanRecord is the strictly-typed, validated record every downstream
// component consumes. Derived fields are computed once during sanitation.
type CleanRecord struct {
	ID            string     `json:"id"`
	Price         float64    `json:"price"`
	Sqft          float64    `json:"sqft"`
	Beds          float64    `json:"beds"`
	Baths         float64    `json:"baths"` // full + 0.5*half
	Garage        float64    `json:"garage"`
	LotSqft       float64    `json:"lot_sqft,omitempty"`
	YearBuilt     int        `json:"year_built"`
	Status        Status     `json:"status"`
	Address       string     `json:"address"`
	Subdivision   string     `json:"subdivision"`
	SchoolZone    string     `json:"school_zone"`
	PlanName      string     `json:"plan_name"`
	Lat           *float64   `json:"lat,omitempty"`
	Lng           *float64   `json:"lng,omitempty"`
	ListDate      *time.Time `json:"list_date,omitempty"`
	SoldDate      *time.Time `json:"sold_date,omitempty"`
	PropertyType  string     `json:"property_type"`
	BuilderName   string     `json:"builder_name"`
	CommunityName string     `json:"community_name"`

	// Derived fields
	PPSF         float64 `json:"price_ppsf"`
	IsNew        bool    `json:"is_new"`
	DedupeID     string  `json:"dedupe_id"`
	DaysOnMarket float64 `json:"days_on_market"`
	MonthIndex   int     `json:"month_index"` // year*12 + month
}

// HasCoordinates reports whether the record carries a usable lat/lng pair.
func (r *CleanRecord) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// ReferenceDate is the date the record's price was observed: the sold date
// for closed sales, otherwise the list date, otherwise nil.
func (r *CleanRecord) ReferenceDate() *time.Time {
	if r.SoldDate != nil {
		return r.SoldDate
	}
	return r.ListDate
}

// Validation bounds for CleanRecord range checks. Records outside any
// bound are excluded from the comparable pool.
const (
	MinPrice        = 50_000
	MaxPrice        = 2_000_000
	MinSqft         = 500
	MaxSqft         = 10_000
	MinBeds         = 1
	MaxBeds         = 8
	MinBaths        = 1
	MaxBaths        = 10
	MinPPSF         = 50
	MaxPPSF         = 500
	MinYearBuilt    = 1900
	MaxDaysOnMarket = 3650
)
