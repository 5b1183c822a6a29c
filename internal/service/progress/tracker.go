package progress

import (
	"context"
	"time"

	"FlowPull/internal/domain/models"
	"FlowPull/pkg/logger"
)

// DefaultTTL keeps finished job entries around for a day.
const DefaultTTL = 24 * time.Hour

// Tracker records fetch-job progress. Writes never block or fail the job:
// a broken store degrades to missing progress, not a failed fetch.
type Tracker struct {
	store  Store
	ttl    time.Duration
	logger *logger.Logger
}

func NewTracker(store Store, ttl time.Duration, lgr *logger.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, ttl: ttl, logger: lgr}
}

// Init registers a fresh progress entry and returns it for updating.
func (t *Tracker) Init(ctx context.Context, jobID, instrument string, total int) *models.FetchJobProgress {
	p := &models.FetchJobProgress{
		JobID:      jobID,
		Instrument: instrument,
		Total:      total,
		StartedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	t.Save(ctx, p)
	return p
}

// Save persists the snapshot. Errors are logged, never returned.
func (t *Tracker) Save(ctx context.Context, p *models.FetchJobProgress) {
	p.UpdatedAt = time.Now()
	if err := t.store.Put(ctx, p, t.ttl); err != nil {
		t.logger.Warn("progress save failed",
			logger.String("job_id", p.JobID),
			logger.Error(err))
	}
}

// Get returns the latest snapshot, or ErrNotFound when unknown or expired.
func (t *Tracker) Get(ctx context.Context, jobID string) (*models.FetchJobProgress, error) {
	return t.store.Get(ctx, jobID)
}
