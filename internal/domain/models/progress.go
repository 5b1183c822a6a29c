package models

import "time"

// FetchStatus classifies the outcome of fetching one date.
type FetchStatus string

const (
	StatusSaved   FetchStatus = "saved"
	StatusSkipped FetchStatus = "skipped" // every row already persisted
	StatusEmpty   FetchStatus = "empty"   // upstream returned no rows
	StatusError   FetchStatus = "error"
)

// FetchJobProgress is the snapshot a dashboard polls while a fetch job runs.
type FetchJobProgress struct {
	JobID       string    `json:"job_id"`
	Instrument  string    `json:"instrument"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Saved       int       `json:"saved"`
	Pending     int       `json:"pending"` // accepted but not yet flushed
	Duplicates  int       `json:"duplicates"`
	Skipped     int       `json:"skipped"`
	Errors      int       `json:"errors"`
	Retries     int       `json:"retries"`
	CurrentDate string    `json:"current_date,omitempty"`
	Done        bool      `json:"done"`
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BatchResult summarizes a date-range fetch.
type BatchResult struct {
	Instrument     string   `json:"instrument"`
	TotalDates     int      `json:"total_dates"`
	SavedDates     []string `json:"saved_dates"`
	SkippedDates   []string `json:"skipped_dates"`
	EmptyDates     []string `json:"empty_dates"`
	ErrorDates     []string `json:"error_dates"`
	RowsReceived   int      `json:"rows_received"`
	RowsSaved      int      `json:"rows_saved"`
	RowsDuplicate  int      `json:"rows_duplicate"`
	StorageErrors  int      `json:"storage_errors"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
}

// Record tallies one date outcome into the result.
func (b *BatchResult) Record(date string, status FetchStatus) {
	switch status {
	case StatusSaved:
		b.SavedDates = append(b.SavedDates, date)
	case StatusSkipped:
		b.SkippedDates = append(b.SkippedDates, date)
	case StatusEmpty:
		b.EmptyDates = append(b.EmptyDates, date)
	case StatusError:
		b.ErrorDates = append(b.ErrorDates, date)
	}
}

// ProgressEvent is one milestone of a full-universe backfill, streamed to the
// caller as instruments complete.
type ProgressEvent struct {
	Instrument              string   `json:"instrument"`
	InstrumentName          string   `json:"instrument_name,omitempty"`
	ProcessedCount          int      `json:"processed_count"`
	TotalCount              int      `json:"total_count"`
	ReceivedCount           int      `json:"received_count"`
	SavedCount              int      `json:"saved_count"`
	DuplicateCount          int      `json:"duplicate_count"`
	ErrorCount              int      `json:"error_count"`
	CumulativeReceivedCount int      `json:"cumulative_received_count"`
	CumulativeSavedCount    int      `json:"cumulative_saved_count"`
	Errors                  []string `json:"errors,omitempty"`
	Completed               bool     `json:"completed"`
}
