package models

import (
	"time"
)

// PostureRecord is one sample as delivered by a sensor or the dashboard
type PostureRecord struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Sitting   *bool     `json:"sitting"`
}

// BatchRecords carries several records for one ingest call
type BatchRecords struct {
	Records []PostureRecord `json:"records"`
}

// WindowKind selects how the sample window is scoped
type WindowKind string

const (
	// WindowToday covers one calendar day in the configured timezone
	WindowToday WindowKind = "today"
	// WindowLatest covers the most recent N records
	WindowLatest WindowKind = "latest"
)

// QueryParams scopes a sample query to one subject. A zero StartTime with a
// positive Limit selects the most recent Limit records.
type QueryParams struct {
	SubjectID string    `json:"subject_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Limit     int       `json:"limit,omitempty"`
}

// Latest reports whether the query asks for the most recent records
func (p QueryParams) Latest() bool {
	return p.StartTime.IsZero() && p.Limit > 0
}

// DayParams returns the query covering the calendar day of day in loc
func DayParams(subjectID string, day time.Time, loc *time.Location) QueryParams {
	if loc == nil {
		loc = time.UTC
	}
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return QueryParams{
		SubjectID: subjectID,
		StartTime: start,
		EndTime:   start.AddDate(0, 0, 1),
	}
}

// LatestParams returns the query for the most recent limit records
func LatestParams(subjectID string, limit int) QueryParams {
	return QueryParams{
		SubjectID: subjectID,
		Limit:     limit,
	}
}
