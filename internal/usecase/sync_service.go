package usecase

import (
	"context"
	"fmt"
	"time"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
	"FlowPull/internal/service/progress"
	"FlowPull/internal/service/upstream"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"

	"github.com/google/uuid"
)

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	FlushEvery      int           // dates buffered between flushes in range fetches
	InstrumentDelay time.Duration // pause between instruments in a universe backfill
	UniverseFloor   time.Time     // oldest date a universe backfill reaches
	AmountQty       string
	TradeType       string
	Unit            string
}

func (c *SyncConfig) applyDefaults() {
	if c.FlushEvery < 1 {
		c.FlushEvery = 5
	}
	if c.InstrumentDelay < 0 {
		c.InstrumentDelay = 0
	}
	if c.UniverseFloor.IsZero() {
		c.UniverseFloor = time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)
	}
	if c.AmountQty == "" {
		c.AmountQty = models.AmtQtyTypeQty
	}
	if c.TradeType == "" {
		c.TradeType = models.TradeTypeNetBuy
	}
	if c.Unit == "" {
		c.Unit = string(models.UnitThousand)
	}
}

// FetchCommand requests a full history walk anchored at Date.
type FetchCommand struct {
	JobID      string
	Instrument string
	Date       time.Time
	Fold       bool
}

// FetchResult summarizes a single walk.
type FetchResult struct {
	JobID      string `json:"job_id"`
	Instrument string `json:"instrument"`
	Pages      int    `json:"pages"`
	Received   int    `json:"received"`
	Saved      int    `json:"saved"`
	Duplicates int    `json:"duplicates"`
	Folded     int    `json:"folded"`
}

// RangeCommand requests date-by-date fetching over [From, To].
type RangeCommand struct {
	JobID      string
	Instrument string
	From       time.Time
	To         time.Time
	Fold       bool
}

// BackfillCommand requests a full-universe backfill.
type BackfillCommand struct {
	JobID string `json:"job_id"`
}

// SyncService orchestrates walks, batch writes, folds, and progress.
type SyncService struct {
	walker    *Walker
	caller    upstream.PageFetcher
	store     drepo.FlowStore
	publisher drepo.FlowPublisher
	accum     *Accumulator
	universe  drepo.InstrumentUniverse
	tracker   *progress.Tracker
	metrics   drepo.Metrics
	logger    *logger.Logger
	cfg       SyncConfig
}

// NewSyncService creates the orchestrator.
func NewSyncService(
	walker *Walker,
	caller upstream.PageFetcher,
	store drepo.FlowStore,
	publisher drepo.FlowPublisher,
	accum *Accumulator,
	universe drepo.InstrumentUniverse,
	tracker *progress.Tracker,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	cfg SyncConfig,
) *SyncService {
	cfg.applyDefaults()
	return &SyncService{
		walker:    walker,
		caller:    caller,
		store:     store,
		publisher: publisher,
		accum:     accum,
		universe:  universe,
		tracker:   tracker,
		metrics:   metrics,
		logger:    lgr,
		cfg:       cfg,
	}
}

func (s *SyncService) pageRequest(instrument string, date time.Time) upstream.PageRequest {
	return upstream.PageRequest{
		Instrument: instrument,
		Date:       date,
		AmountQty:  s.cfg.AmountQty,
		TradeType:  s.cfg.TradeType,
		Unit:       s.cfg.Unit,
	}
}

func acceptAll(writer *BatchWriter) func(context.Context, []models.DailyFlow) error {
	return func(ctx context.Context, rows []models.DailyFlow) error {
		for _, row := range rows {
			if _, err := writer.Accept(ctx, row); err != nil {
				return err
			}
		}
		writer.MarkUnit()
		writer.FlushIfDue(ctx)
		return nil
	}
}

// FetchOne walks the full history for one instrument starting at cmd.Date
// (today when zero), dedups against storage, and optionally folds the
// cumulative gap afterwards.
func (s *SyncService) FetchOne(ctx context.Context, cmd FetchCommand) (*FetchResult, error) {
	if cmd.JobID == "" {
		cmd.JobID = uuid.NewString()
	}
	if cmd.Date.IsZero() {
		cmd.Date = util.Today()
	}

	p := s.tracker.Init(ctx, cmd.JobID, cmd.Instrument, 0)
	writer := NewBatchWriter(s.store, s.publisher, s.metrics, s.logger, 1)
	retries := upstream.NewRetryCounter()
	ctx = upstream.ContextWithRetryCounter(ctx, retries)

	walkRes, walkErr := s.walker.Walk(ctx, WalkRequest{
		Page: s.pageRequest(cmd.Instrument, cmd.Date),
		Sink: acceptAll(writer),
		OnPage: func(r WalkResult) {
			s.metrics.RecordPageFetched(cmd.Instrument)
			p.Processed = r.Pages
			p.Saved = writer.Saved()
			p.Pending = writer.Pending()
			p.Duplicates = writer.Duplicates()
			p.Retries = retries.Count()
			s.tracker.Save(ctx, p)
		},
	})
	writer.FlushFinal(ctx)

	result := &FetchResult{
		JobID:      cmd.JobID,
		Instrument: cmd.Instrument,
		Pages:      walkRes.Pages,
		Received:   walkRes.Received,
		Saved:      writer.Saved(),
		Duplicates: writer.Duplicates(),
	}

	p.Processed = walkRes.Pages
	p.Saved = writer.Saved()
	p.Pending = writer.Pending()
	p.Duplicates = writer.Duplicates()
	p.Errors = writer.StorageErrors()
	p.Retries = retries.Count()
	p.Done = true
	if walkErr != nil {
		p.Errors++
		p.Message = walkErr.Error()
	}
	s.tracker.Save(ctx, p)

	if walkErr != nil {
		return result, fmt.Errorf("walk %s: %w", cmd.Instrument, walkErr)
	}

	if cmd.Fold {
		folded, err := s.accum.Sync(ctx, cmd.Instrument)
		if err != nil {
			return result, fmt.Errorf("fold %s: %w", cmd.Instrument, err)
		}
		result.Folded = folded
	}

	return result, nil
}

// FetchRange fetches one page per date across [From, To], oldest first. A
// date whose rows are all already stored lands in the Skipped bucket; fetch
// failures are isolated per date.
func (s *SyncService) FetchRange(ctx context.Context, cmd RangeCommand) (*models.BatchResult, error) {
	if cmd.From.After(cmd.To) {
		return nil, fmt.Errorf("invalid range: %s after %s", util.FormatYMD(cmd.From), util.FormatYMD(cmd.To))
	}
	if cmd.JobID == "" {
		cmd.JobID = uuid.NewString()
	}

	dates := util.DatesBetween(cmd.From, cmd.To)
	start := time.Now()

	p := s.tracker.Init(ctx, cmd.JobID, cmd.Instrument, len(dates))
	writer := NewBatchWriter(s.store, s.publisher, s.metrics, s.logger, s.cfg.FlushEvery)
	retries := upstream.NewRetryCounter()
	ctx = upstream.ContextWithRetryCounter(ctx, retries)

	result := &models.BatchResult{
		Instrument: cmd.Instrument,
		TotalDates: len(dates),
	}

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			writer.FlushFinal(ctx)
			return result, err
		}

		status := s.fetchDate(ctx, writer, cmd.Instrument, date, result)
		result.Record(util.FormatYMD(date), status)

		writer.MarkUnit()
		writer.FlushIfDue(ctx)

		p.Processed++
		p.CurrentDate = util.FormatYMD(date)
		p.Saved = writer.Saved()
		p.Pending = writer.Pending()
		p.Duplicates = writer.Duplicates()
		p.Skipped = len(result.SkippedDates)
		p.Errors = len(result.ErrorDates) + writer.StorageErrors()
		p.Retries = retries.Count()
		s.tracker.Save(ctx, p)
	}

	writer.FlushFinal(ctx)

	result.RowsSaved = writer.Saved()
	result.RowsDuplicate = writer.Duplicates()
	result.StorageErrors = writer.StorageErrors()
	result.ElapsedSeconds = time.Since(start).Seconds()

	p.Saved = writer.Saved()
	p.Pending = writer.Pending()
	p.Errors = len(result.ErrorDates) + writer.StorageErrors()
	p.Retries = retries.Count()
	p.Done = true
	s.tracker.Save(ctx, p)
	s.metrics.RecordLatency("fetch_range", result.ElapsedSeconds)

	if cmd.Fold {
		if _, err := s.accum.Sync(ctx, cmd.Instrument); err != nil {
			s.logger.Error("post-range fold failed",
				logger.String("instrument", cmd.Instrument),
				logger.Error(err))
		}
	}

	return result, nil
}

// fetchDate pulls the first page for one date and accepts only rows dated
// exactly on it; the endpoint returns the anchor date plus older history.
func (s *SyncService) fetchDate(ctx context.Context, writer *BatchWriter, instrument string, date time.Time, result *models.BatchResult) models.FetchStatus {
	page, err := s.caller.FetchPage(ctx, s.pageRequest(instrument, date))
	if err != nil {
		s.metrics.RecordError("fetch_date")
		s.logger.Error("date fetch failed",
			logger.String("instrument", instrument),
			logger.String("date", util.FormatYMD(date)),
			logger.Error(err))
		return models.StatusError
	}
	s.metrics.RecordPageFetched(instrument)

	var received, accepted int
	for _, row := range page.Rows {
		if !util.SameDay(row.Date, date) {
			continue
		}
		received++
		ok, err := writer.Accept(ctx, row)
		if err != nil {
			s.logger.Error("dedup check failed",
				logger.String("instrument", instrument),
				logger.String("date", util.FormatYMD(date)),
				logger.Error(err))
			return models.StatusError
		}
		if ok {
			accepted++
		}
	}
	result.RowsReceived += received

	switch {
	case received == 0:
		return models.StatusEmpty
	case accepted == 0:
		return models.StatusSkipped
	default:
		return models.StatusSaved
	}
}

// UniverseBackfill walks every instrument in the universe sequentially and
// streams one progress event per instrument. The terminal event always has
// Completed set, even when listing fails. At most one instrument walk is
// active at a time.
func (s *SyncService) UniverseBackfill(ctx context.Context, cmd BackfillCommand) <-chan models.ProgressEvent {
	if cmd.JobID == "" {
		cmd.JobID = uuid.NewString()
	}

	events := make(chan models.ProgressEvent, 16)

	go func() {
		defer close(events)

		retries := upstream.NewRetryCounter()
		ctx := upstream.ContextWithRetryCounter(ctx, retries)

		// Sends must not outlive the consumer; an abandoned SSE stream
		// cancels ctx and the remaining events are dropped.
		send := func(ev models.ProgressEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		var cumReceived, cumSaved int

		refs, err := s.universe.List(ctx)
		if err != nil {
			s.logger.Error("universe list failed", logger.Error(err))
			send(models.ProgressEvent{
				ErrorCount: 1,
				Errors:     []string{fmt.Sprintf("list universe: %v", err)},
				Completed:  true,
			})
			return
		}

		p := s.tracker.Init(ctx, cmd.JobID, "", len(refs))

		for i, ref := range refs {
			if err := ctx.Err(); err != nil {
				break
			}

			stats := s.backfillInstrument(ctx, ref.Code)
			cumReceived += stats.received
			cumSaved += stats.saved

			p.Processed = i + 1
			p.Saved = cumSaved
			p.Duplicates += stats.duplicates
			p.Errors += len(stats.errors)
			p.Retries = retries.Count()
			p.CurrentDate = ref.Code
			s.tracker.Save(ctx, p)

			send(models.ProgressEvent{
				Instrument:              ref.Code,
				InstrumentName:          ref.Name,
				ProcessedCount:          i + 1,
				TotalCount:              len(refs),
				ReceivedCount:           stats.received,
				SavedCount:              stats.saved,
				DuplicateCount:          stats.duplicates,
				ErrorCount:              len(stats.errors),
				CumulativeReceivedCount: cumReceived,
				CumulativeSavedCount:    cumSaved,
				Errors:                  stats.errors,
			})

			if i < len(refs)-1 && s.cfg.InstrumentDelay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(s.cfg.InstrumentDelay):
				}
			}
		}

		p.Retries = retries.Count()
		p.Done = true
		s.tracker.Save(ctx, p)

		send(models.ProgressEvent{
			ProcessedCount:          p.Processed,
			TotalCount:              len(refs),
			CumulativeReceivedCount: cumReceived,
			CumulativeSavedCount:    cumSaved,
			Completed:               true,
		})
	}()

	return events
}

type instrumentStats struct {
	received   int
	saved      int
	duplicates int
	errors     []string
}

// backfillInstrument fills both ends of one instrument's window: a recent
// walk from today down to the stored max date, then a past walk from just
// before the stored min date down to the universe floor. Errors accumulate
// instead of aborting the batch.
func (s *SyncService) backfillInstrument(ctx context.Context, code string) instrumentStats {
	var stats instrumentStats
	writer := NewBatchWriter(s.store, s.publisher, s.metrics, s.logger, 1)
	floorStop := s.cfg.UniverseFloor.AddDate(0, 0, -1)

	fail := func(stage string, err error) {
		s.metrics.RecordError("backfill")
		s.logger.Error("backfill stage failed",
			logger.String("instrument", code),
			logger.String("stage", stage),
			logger.Error(err))
		stats.errors = append(stats.errors, fmt.Sprintf("%s: %v", stage, err))
	}

	maxDate, hasData, err := s.store.MaxDate(ctx, code)
	if err != nil {
		fail("max date", err)
		return stats
	}

	if !hasData {
		// Nothing stored yet: one walk from today all the way to the floor.
		res, err := s.walker.Walk(ctx, WalkRequest{
			Page:     s.pageRequest(code, util.Today()),
			StopDate: &floorStop,
			Sink:     acceptAll(writer),
		})
		stats.received += res.Received
		if err != nil {
			fail("initial walk", err)
		}
	} else {
		if !util.SameDay(maxDate, util.Today()) {
			stop := maxDate
			res, err := s.walker.Walk(ctx, WalkRequest{
				Page:     s.pageRequest(code, util.Today()),
				StopDate: &stop,
				Sink:     acceptAll(writer),
			})
			stats.received += res.Received
			if err != nil {
				fail("recent walk", err)
			}
		}

		minDate, ok, err := s.store.MinDate(ctx, code)
		if err != nil {
			fail("min date", err)
		} else if ok && minDate.After(s.cfg.UniverseFloor) {
			res, err := s.walker.Walk(ctx, WalkRequest{
				Page:     s.pageRequest(code, minDate.AddDate(0, 0, -1)),
				StopDate: &floorStop,
				Sink:     acceptAll(writer),
			})
			stats.received += res.Received
			if err != nil {
				fail("past walk", err)
			}
		}
	}

	writer.FlushFinal(ctx)
	stats.saved = writer.Saved()
	stats.duplicates = writer.Duplicates()
	if writer.StorageErrors() > 0 {
		stats.errors = append(stats.errors, fmt.Sprintf("storage: %d failed batches", writer.StorageErrors()))
	}

	if _, err := s.accum.Sync(ctx, code); err != nil {
		fail("fold", err)
	}

	return stats
}

// Accumulator exposes the fold engine for the cumulative API endpoints.
func (s *SyncService) Accumulator() *Accumulator { return s.accum }
