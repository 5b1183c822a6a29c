package repository

import (
	"context"
	"time"

	"FlowPull/internal/domain/models"
)

// FlowStore persists daily investor-flow rows.
type FlowStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	SaveAll(ctx context.Context, rows []*models.DailyFlow) error
	Exists(ctx context.Context, key models.FlowKey) (bool, error)
	Range(ctx context.Context, instrument string, from, to time.Time) ([]*models.DailyFlow, error)
	// MaxDate/MinDate return ok=false when no rows exist for the instrument.
	MaxDate(ctx context.Context, instrument string) (time.Time, bool, error)
	MinDate(ctx context.Context, instrument string) (time.Time, bool, error)
	Instruments(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// CumulativeStore persists running-total rows derived from daily flows.
type CumulativeStore interface {
	Init(ctx context.Context) error
	SaveAll(ctx context.Context, rows []*models.Cumulative) error
	Range(ctx context.Context, instrument string, from, to time.Time) ([]*models.Cumulative, error)
	MaxDate(ctx context.Context, instrument string) (time.Time, bool, error)
	Latest(ctx context.Context, instrument string) (*models.Cumulative, error)
	Close() error
}

// InstrumentUniverse lists the instruments a full backfill targets.
type InstrumentUniverse interface {
	List(ctx context.Context) ([]models.InstrumentRef, error)
}

// AuthProvider supplies a valid upstream bearer token, refreshing as needed.
type AuthProvider interface {
	ValidToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// FlowPublisher fans saved batches out to the downstream pipeline.
type FlowPublisher interface {
	PublishFlows(ctx context.Context, rows []*models.DailyFlow) error
	Close() error
}

// QuoteStream is a realtime price feed.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordPageFetched(instrument string)
	RecordRowsSaved(instrument string, n int)
	RecordRowsDuplicate(instrument string, n int)
	RecordRetry(reason string)
	RecordError(kind string)
	RecordLastPrice(instrument string, price float64)
	RecordLatency(op string, seconds float64)
}
