package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
	"FlowPull/internal/service/progress"
	"FlowPull/internal/usecase"
	xhttp "FlowPull/pkg/http"
	xlogger "FlowPull/pkg/logger"
	"FlowPull/pkg/queue"
	"FlowPull/pkg/util"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// FlowsHandler serves the fetch, backfill, and query endpoints.
type FlowsHandler struct {
	logger  *xlogger.Logger
	service *usecase.SyncService
	flows   drepo.FlowStore
	cumuls  drepo.CumulativeStore
	tracker *progress.Tracker
	jobs    queue.QueueService
}

func NewFlowsHandler(
	logger *xlogger.Logger,
	service *usecase.SyncService,
	flows drepo.FlowStore,
	cumuls drepo.CumulativeStore,
	tracker *progress.Tracker,
	jobs queue.QueueService,
) *FlowsHandler {
	return &FlowsHandler{
		logger:  logger,
		service: service,
		flows:   flows,
		cumuls:  cumuls,
		tracker: tracker,
		jobs:    jobs,
	}
}

func (h *FlowsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/flows/fetch", h.Fetch)
	g.POST("/flows/range", h.FetchRange)
	g.POST("/flows/backfill", h.EnqueueBackfill)
	g.GET("/flows/backfill/stream", h.BackfillStream)
	g.GET("/flows/jobs/:id", h.JobProgress)
	g.GET("/flows/:instrument", h.QueryFlows)
	g.GET("/cumulative/:instrument", h.QueryCumulative)
	g.POST("/cumulative/:instrument/sync", h.SyncCumulative)
	g.POST("/cumulative/sync-all", h.SyncAllCumulative)
}

func (h *FlowsHandler) Health(c echo.Context) error {
	if err := h.flows.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *FlowsHandler) Fetch(c echo.Context) error {
	req := &models.FetchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cmd := usecase.FetchCommand{Instrument: req.Instrument, Fold: req.Fold}
	if req.Date != "" {
		date, err := util.ParseYMD(req.Date)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid date %q", req.Date))
		}
		cmd.Date = date
	}

	res, err := h.service.FetchOne(c.Request().Context(), cmd)
	if err != nil {
		h.logger.Error("fetch failed",
			xlogger.String("instrument", req.Instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("fetch failed: %v", err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *FlowsHandler) FetchRange(c echo.Context) error {
	req := &models.RangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	from, err := util.ParseYMD(req.From)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from %q", req.From))
	}
	to, err := util.ParseYMD(req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to %q", req.To))
	}
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from is after to"))
	}

	res, err := h.service.FetchRange(c.Request().Context(), usecase.RangeCommand{
		Instrument: req.Instrument,
		From:       from,
		To:         to,
		Fold:       req.Fold,
	})
	if err != nil {
		h.logger.Error("range fetch failed",
			xlogger.String("instrument", req.Instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("range fetch failed: %v", err))
	}
	return xhttp.SuccessResponse(c, res)
}

// EnqueueBackfill schedules a universe backfill on the job queue and returns
// the job id for progress polling.
func (h *FlowsHandler) EnqueueBackfill(c echo.Context) error {
	cmd := usecase.BackfillCommand{JobID: uuid.NewString()}
	if err := h.jobs.PublishMessage(c.Request().Context(), usecase.BackfillMessageType, cmd); err != nil {
		h.logger.Error("backfill enqueue failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not enqueue backfill"))
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"job_id": cmd.JobID})
}

// BackfillStream runs a universe backfill inline and streams one SSE event
// per instrument milestone plus a terminal completed event.
func (h *FlowsHandler) BackfillStream(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for ev := range h.service.UniverseBackfill(ctx, usecase.BackfillCommand{}) {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return nil // client went away
		}
		w.Flush()
	}
	return nil
}

func (h *FlowsHandler) JobProgress(c echo.Context) error {
	jobID := c.Param("id")
	p, err := h.tracker.Get(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", jobID))
		}
		h.logger.Error("progress lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("progress lookup failed"))
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *FlowsHandler) QueryFlows(c echo.Context) error {
	instrument := c.Param("instrument")
	from, to, err := parseQueryRange(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	rows, err := h.flows.Range(c.Request().Context(), instrument, from, to)
	if err != nil {
		h.logger.Error("flow query failed",
			xlogger.String("instrument", instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("flow query failed"))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowsHandler) QueryCumulative(c echo.Context) error {
	instrument := c.Param("instrument")
	from, to, err := parseQueryRange(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	rows, err := h.cumuls.Range(c.Request().Context(), instrument, from, to)
	if err != nil {
		h.logger.Error("cumulative query failed",
			xlogger.String("instrument", instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("cumulative query failed"))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *FlowsHandler) SyncCumulative(c echo.Context) error {
	instrument := c.Param("instrument")
	n, err := h.service.Accumulator().Sync(c.Request().Context(), instrument)
	if err != nil {
		h.logger.Error("cumulative sync failed",
			xlogger.String("instrument", instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("cumulative sync failed: %v", err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"instrument": instrument, "folded": n})
}

func (h *FlowsHandler) SyncAllCumulative(c echo.Context) error {
	results, err := h.service.Accumulator().SyncAll(c.Request().Context())
	if err != nil {
		h.logger.Error("cumulative sync-all failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("cumulative sync-all failed: %v", err))
	}
	return xhttp.SuccessResponse(c, results)
}

// parseQueryRange parses the optional from/to query params, defaulting to
// the last 30 days.
func parseQueryRange(c echo.Context) (time.Time, time.Time, error) {
	to := util.Today()
	from := to.AddDate(0, 0, -30)
	if v := c.QueryParam("from"); v != "" {
		t, err := util.ParseYMD(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from %q", v)
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := util.ParseYMD(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to %q", v)
		}
		to = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from is after to")
	}
	return from, to, nil
}
