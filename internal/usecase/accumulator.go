package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"
)

// ErrOutOfOrder is returned when daily flows are not strictly increasing by
// date relative to the fold seed. Nothing is written in that case.
var ErrOutOfOrder = errors.New("accumulator: daily flows out of order")

// FoldFlows derives cumulative rows from daily flows. prev seeds the running
// totals; nil starts them at zero. rows must be strictly increasing by date
// and strictly after prev's date.
func FoldFlows(prev *models.Cumulative, rows []*models.DailyFlow) ([]*models.Cumulative, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	last := prev
	out := make([]*models.Cumulative, 0, len(rows))
	for _, r := range rows {
		if last != nil && !r.Date.After(last.Date) {
			return nil, fmt.Errorf("%w: %s not after %s",
				ErrOutOfOrder, util.FormatYMD(r.Date), util.FormatYMD(last.Date))
		}
		next := models.Advance(last, r)
		out = append(out, &next)
		last = &next
	}
	return out, nil
}

// Accumulator maintains cumulative running totals incrementally: it compares
// the daily and cumulative max dates per instrument and folds only the gap.
type Accumulator struct {
	flows   drepo.FlowStore
	cumuls  drepo.CumulativeStore
	locks   *keyedMutex
	floor   time.Time
	logger  *logger.Logger
	metrics drepo.Metrics
}

// NewAccumulator creates an accumulator. floor bounds the initial load when
// no cumulative rows exist yet.
func NewAccumulator(flows drepo.FlowStore, cumuls drepo.CumulativeStore, floor time.Time, metrics drepo.Metrics, lgr *logger.Logger) *Accumulator {
	return &Accumulator{
		flows:   flows,
		cumuls:  cumuls,
		locks:   newKeyedMutex(),
		floor:   floor,
		logger:  lgr,
		metrics: metrics,
	}
}

// Sync folds newly arrived daily flows into the cumulative table for one
// instrument and returns the number of rows written. Concurrent calls for
// the same instrument serialize on a per-instrument lock.
func (a *Accumulator) Sync(ctx context.Context, instrument string) (int, error) {
	unlock := a.locks.Lock(instrument)
	defer unlock()

	start := time.Now()

	dailyMax, ok, err := a.flows.MaxDate(ctx, instrument)
	if err != nil {
		return 0, fmt.Errorf("daily max date: %w", err)
	}
	if !ok {
		return 0, nil // nothing to fold
	}

	from := a.floor
	var prev *models.Cumulative

	cumMax, ok, err := a.cumuls.MaxDate(ctx, instrument)
	if err != nil {
		return 0, fmt.Errorf("cumulative max date: %w", err)
	}
	if ok {
		if !dailyMax.After(cumMax) {
			return 0, nil // already up to date
		}
		prev, err = a.cumuls.Latest(ctx, instrument)
		if err != nil {
			return 0, fmt.Errorf("latest cumulative: %w", err)
		}
		from = cumMax.AddDate(0, 0, 1)
	}

	rows, err := a.flows.Range(ctx, instrument, from, dailyMax)
	if err != nil {
		return 0, fmt.Errorf("load gap flows: %w", err)
	}

	folded, err := FoldFlows(prev, rows)
	if err != nil {
		return 0, err
	}
	if len(folded) == 0 {
		return 0, nil
	}

	if err := a.cumuls.SaveAll(ctx, folded); err != nil {
		return 0, fmt.Errorf("save cumulative: %w", err)
	}

	a.metrics.RecordLatency("accumulator_sync", time.Since(start).Seconds())
	a.logger.Info("cumulative synced",
		logger.String("instrument", instrument),
		logger.Int("rows", len(folded)),
		logger.String("from", util.FormatYMD(from)),
		logger.String("to", util.FormatYMD(dailyMax)))
	return len(folded), nil
}

// SyncAll folds every instrument present in the daily store. Failures are
// isolated per instrument and reported in the returned map as -1 plus a log
// entry; a listing failure is the only hard error.
func (a *Accumulator) SyncAll(ctx context.Context) (map[string]int, error) {
	instruments, err := a.flows.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	results := make(map[string]int, len(instruments))
	for _, instrument := range instruments {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		n, err := a.Sync(ctx, instrument)
		if err != nil {
			a.metrics.RecordError("accumulator")
			a.logger.Error("cumulative sync failed",
				logger.String("instrument", instrument),
				logger.Error(err))
			results[instrument] = -1
			continue
		}
		results[instrument] = n
	}
	return results, nil
}
