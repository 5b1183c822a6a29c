package models

// FetchRequest triggers a full history walk for one instrument. Date anchors
// the walk (compact yyyyMMdd); empty means today.
type FetchRequest struct {
	Instrument string `json:"instrument" validate:"required,min=4,max=12"`
	Date       string `json:"date,omitempty" validate:"omitempty,len=8,numeric"`
	Fold       bool   `json:"fold" default:"true"`
}

// RangeRequest triggers a date-range backfill for one instrument.
type RangeRequest struct {
	Instrument string `json:"instrument" validate:"required,min=4,max=12"`
	From       string `json:"from" validate:"required,len=8,numeric"`
	To         string `json:"to" validate:"required,len=8,numeric"`
	Fold       bool   `json:"fold" default:"true"`
}
