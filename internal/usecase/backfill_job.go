package usecase

import (
	"context"

	"FlowPull/pkg/logger"
	"FlowPull/pkg/queue"
)

// BackfillMessageType identifies queued universe-backfill requests.
const BackfillMessageType = "backfill.universe"

// BackfillJob runs queued universe backfills in the background. The REST
// handler enqueues; a worker drains the progress channel into logs while the
// tracker keeps the pollable snapshot.
type BackfillJob struct {
	service *SyncService
	logger  *logger.Logger
}

// NewBackfillJob creates the queue job.
func NewBackfillJob(service *SyncService, lgr *logger.Logger) *BackfillJob {
	return &BackfillJob{service: service, logger: lgr}
}

func (j *BackfillJob) Name() string { return "universe-backfill" }

func (j *BackfillJob) Type() string { return BackfillMessageType }

func (j *BackfillJob) Handle(ctx context.Context, payload interface{}) error {
	cmd, err := queue.ParsePayload[BackfillCommand](payload)
	if err != nil {
		return err
	}

	j.logger.Info("universe backfill starting", logger.String("job_id", cmd.JobID))

	for ev := range j.service.UniverseBackfill(ctx, *cmd) {
		if ev.Completed {
			j.logger.Info("universe backfill completed",
				logger.String("job_id", cmd.JobID),
				logger.Int("processed", ev.ProcessedCount),
				logger.Int("total", ev.TotalCount),
				logger.Int("received", ev.CumulativeReceivedCount),
				logger.Int("saved", ev.CumulativeSavedCount))
			continue
		}
		j.logger.Info("universe backfill progress",
			logger.String("job_id", cmd.JobID),
			logger.String("instrument", ev.Instrument),
			logger.Int("processed", ev.ProcessedCount),
			logger.Int("total", ev.TotalCount),
			logger.Int("saved", ev.SavedCount),
			logger.Int("duplicates", ev.DuplicateCount),
			logger.Int("errors", ev.ErrorCount))
	}

	return nil
}
