package usecase

import (
	"context"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"
)

// BatchWriter buffers accepted rows and flushes them in batches. Dedup
// happens at accept time against the store, so a row already persisted is
// counted once as a duplicate and never buffered. Storage failures are
// counted and logged; they drop the failed batch but never abort the caller.
type BatchWriter struct {
	store     drepo.FlowStore
	publisher drepo.FlowPublisher
	metrics   drepo.Metrics
	logger    *logger.Logger

	flushEvery int
	units      int

	buf           []*models.DailyFlow
	saved         int
	duplicates    int
	storageErrors int
}

// NewBatchWriter creates a writer flushing every flushEvery units. A unit is
// whatever the caller marks: a page during walks, a date during range
// fetches.
func NewBatchWriter(store drepo.FlowStore, publisher drepo.FlowPublisher, metrics drepo.Metrics, lgr *logger.Logger, flushEvery int) *BatchWriter {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &BatchWriter{
		store:      store,
		publisher:  publisher,
		metrics:    metrics,
		logger:     lgr,
		flushEvery: flushEvery,
	}
}

// Accept buffers the row unless it already exists. Returns whether the row
// was buffered for saving.
func (w *BatchWriter) Accept(ctx context.Context, row models.DailyFlow) (bool, error) {
	exists, err := w.store.Exists(ctx, row.Key())
	if err != nil {
		return false, err
	}
	if exists {
		w.duplicates++
		w.metrics.RecordRowsDuplicate(row.Instrument, 1)
		return false, nil
	}
	r := row
	w.buf = append(w.buf, &r)
	return true, nil
}

// MarkUnit advances the flush clock by one unit.
func (w *BatchWriter) MarkUnit() {
	w.units++
}

// FlushIfDue flushes when enough units have accumulated since the last flush.
func (w *BatchWriter) FlushIfDue(ctx context.Context) {
	if w.units >= w.flushEvery {
		w.flush(ctx)
		w.units = 0
	}
}

// FlushFinal flushes whatever remains buffered.
func (w *BatchWriter) FlushFinal(ctx context.Context) {
	w.flush(ctx)
	w.units = 0
}

func (w *BatchWriter) flush(ctx context.Context) {
	if len(w.buf) == 0 {
		return
	}
	batch := w.buf
	w.buf = nil

	if err := w.store.SaveAll(ctx, batch); err != nil {
		w.storageErrors++
		w.metrics.RecordError("storage")
		w.logger.Error("batch save failed",
			logger.Int("rows", len(batch)),
			logger.Error(err))
		return
	}

	w.saved += len(batch)
	w.metrics.RecordRowsSaved(batch[0].Instrument, len(batch))
	w.logger.Debug("batch saved",
		logger.String("instrument", batch[0].Instrument),
		logger.Int("rows", len(batch)),
		logger.String("first", util.FormatYMD(batch[len(batch)-1].Date)),
		logger.String("last", util.FormatYMD(batch[0].Date)))

	if w.publisher != nil {
		if err := w.publisher.PublishFlows(ctx, batch); err != nil {
			w.metrics.RecordError("publish")
			w.logger.Warn("batch publish failed",
				logger.Int("rows", len(batch)),
				logger.Error(err))
		}
	}
}

// Saved reports rows persisted so far.
func (w *BatchWriter) Saved() int { return w.saved }

// Duplicates reports rows skipped as already stored.
func (w *BatchWriter) Duplicates() int { return w.duplicates }

// StorageErrors reports failed flush attempts.
func (w *BatchWriter) StorageErrors() int { return w.storageErrors }

// Pending reports rows buffered but not yet flushed.
func (w *BatchWriter) Pending() int { return len(w.buf) }
