package usecase

import (
	"context"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
)

// QuoteCollector drains the realtime quote stream into last-price gauges.
type QuoteCollector struct {
	stream  drepo.QuoteStream
	metrics drepo.Metrics
}

// NewQuoteCollector creates a new QuoteCollector instance.
func NewQuoteCollector(stream drepo.QuoteStream, metrics drepo.Metrics) *QuoteCollector {
	return &QuoteCollector{stream: stream, metrics: metrics}
}

// IsConnected returns true if the quote stream is connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	qCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, qCh, errCh)
	return nil
}

func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("quotestream")
				_ = c.stream.Reconnect(ctx)
			}
		case q := <-qCh:
			if q == nil {
				continue
			}
			c.metrics.RecordLastPrice(q.Instrument, q.Price)
		}
	}
}

func (c *QuoteCollector) Stop() error { return c.stream.Close() }
