package models

import "time"

// Cumulative is the running total of investor flows for one instrument up to
// and including Date. NetQty and NetAmount carry the cumulative sums per
// category; Daily carries the single-day contribution that produced this row.
type Cumulative struct {
	Instrument   string    `json:"instrument"`
	Date         time.Time `json:"date"`
	CurrentPrice int64     `json:"current_price"`

	Daily     [NumCategories]int64 `json:"daily"`
	NetQty    [NumCategories]int64 `json:"net_qty"`
	NetAmount [NumCategories]int64 `json:"net_amount"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Advance produces the next cumulative row from the previous totals and one
// daily flow. A nil prev seeds the totals at zero.
func Advance(prev *Cumulative, flow *DailyFlow) Cumulative {
	next := Cumulative{
		Instrument:   flow.Instrument,
		Date:         flow.Date,
		CurrentPrice: flow.CurrentPrice,
		UpdatedAt:    time.Now(),
	}
	for c := 0; c < NumCategories; c++ {
		qty := flow.Net[c]
		next.Daily[c] = qty
		if prev != nil {
			next.NetQty[c] = prev.NetQty[c] + qty
			next.NetAmount[c] = prev.NetAmount[c] + qty*flow.CurrentPrice
		} else {
			next.NetQty[c] = qty
			next.NetAmount[c] = qty * flow.CurrentPrice
		}
	}
	return next
}
