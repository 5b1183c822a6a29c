package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category identifies one investor bucket in the upstream flow breakdown.
// The order is fixed and doubles as the index into the Net arrays and the
// storage column tables, so appending is safe but reordering is not.
type Category int

const (
	CatIndividual Category = iota
	CatForeigner
	CatInstitution
	CatFinancialInvest
	CatInsurance
	CatInvestTrust
	CatEtcFinance
	CatBank
	CatPensionFund
	CatPrivateFund
	CatNation
	CatEtcCorporation
	CatNationForeign
	// CatForeignerInstitution is derived: foreigner + institution combined.
	CatForeignerInstitution

	NumCategories int = iota
)

var categoryNames = [NumCategories]string{
	"individual",
	"foreigner",
	"institution",
	"financial_invest",
	"insurance",
	"invest_trust",
	"etc_finance",
	"bank",
	"pension_fund",
	"private_fund",
	"nation",
	"etc_corporation",
	"nation_foreign",
	"foreigner_institution",
}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// UnitType is the upstream scale of quantity values.
type UnitType string

const (
	UnitSingle   UnitType = "1"
	UnitThousand UnitType = "1000"
)

// Trade type and amount/quantity type codes as the upstream API defines them.
const (
	TradeTypeNetBuy  = "0"
	AmtQtyTypeAmount = "1"
	AmtQtyTypeQty    = "2"
)

// DailyFlow is one row of investor-flow data for one instrument on one date.
// Net holds the signed net-buy quantity per category; values are zero when
// the upstream omits a bucket, never unset.
type DailyFlow struct {
	Instrument    string          `json:"instrument"`
	Date          time.Time       `json:"date"`
	TradeType     string          `json:"trade_type"`
	AmountQtyType string          `json:"amount_qty_type"`
	Unit          UnitType        `json:"unit"`
	CurrentPrice  int64           `json:"current_price"`
	PrevDayDiff   int64           `json:"prev_day_diff"`
	FluctRate     decimal.Decimal `json:"fluct_rate"`
	AccVolume     int64           `json:"acc_volume"`
	AccValue      int64           `json:"acc_value"`

	Net [NumCategories]int64 `json:"net"`

	FetchedAt time.Time `json:"fetched_at"`
}

// FlowKey is the natural key of a daily flow row.
type FlowKey struct {
	Instrument    string
	Date          time.Time
	TradeType     string
	AmountQtyType string
}

func (f *DailyFlow) Key() FlowKey {
	return FlowKey{
		Instrument:    f.Instrument,
		Date:          f.Date,
		TradeType:     f.TradeType,
		AmountQtyType: f.AmountQtyType,
	}
}

// InstrumentRef is one entry of the backfill target universe.
type InstrumentRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Quote is one realtime price tick from the quote stream.
type Quote struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
	Timestamp  int64   `json:"timestamp"` // unix seconds
}
