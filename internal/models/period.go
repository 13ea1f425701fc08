package models

import (
	"fmt"
	"time"
)

// DisplayLayout is the DD/MM/YYYY layout used in the report title
const DisplayLayout = "02/01/2006"

// Period is a reporting month anchored to its first day
type Period struct {
	Start       time.Time `json:"start"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	DisplayDate string    `json:"display_date"`
}

// NewPeriod anchors the month containing t to its first day at midnight in t's location
func NewPeriod(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Period{
		Start:       start,
		Month:       int(start.Month()),
		Year:        start.Year(),
		DisplayDate: start.Format(DisplayLayout),
	}
}

// Label returns the MMYYYY form used in snapshot names
func (p Period) Label() string {
	return fmt.Sprintf("%02d%04d", p.Month, p.Year)
}

// String returns a string representation of the Period
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodTemplateData is exposed to path and query templates
type PeriodTemplateData struct {
	Month       int
	MonthPadded string
	Year        int
	YearShort   string
	Label       string
	Kind        string
}

// TemplateData returns the fields available to snapshot path templates
func (p Period) TemplateData(kind SnapshotKind) PeriodTemplateData {
	return PeriodTemplateData{
		Month:       p.Month,
		MonthPadded: fmt.Sprintf("%02d", p.Month),
		Year:        p.Year,
		YearShort:   fmt.Sprintf("%02d", p.Year%100),
		Label:       p.Label(),
		Kind:        kind.String(),
	}
}

// ReportingPeriods holds the three month anchors of one report run
type ReportingPeriods struct {
	Current     Period `json:"current"`
	Previous    Period `json:"previous"`
	PrePrevious Period `json:"pre_previous"`
}

// ForSnapshot returns the period that a disbursement snapshot kind belongs to
func (rp ReportingPeriods) ForSnapshot(kind SnapshotKind) Period {
	switch kind {
	case SnapshotPrevious:
		return rp.Previous
	case SnapshotPrePrevious:
		return rp.PrePrevious
	default:
		return rp.Current
	}
}
