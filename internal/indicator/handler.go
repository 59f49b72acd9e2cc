package indicator

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
)

// RunStore persists finished runs. Optional: without one, runs are
// computed and returned but not retrievable later.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
}

// Notifier fans progress events out to connected clients.
type Notifier interface {
	Broadcast(event any)
}

type Handler struct {
	svc      *Service
	store    RunStore
	notifier Notifier
	log      zerolog.Logger
}

func NewHandler(svc *Service, store RunStore, notifier Notifier, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, store: store, notifier: notifier, log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/runs", h.CreateRun)
	api.GET("/runs/:id", h.GetRun)
	api.GET("/indicators", h.ListIndicators)
	api.GET("/sources", h.ListSources)
}

// CreateRun computes every requested indicator over the period and returns
// the aggregated results. Per-source and per-indicator failures come back
// inside the payload; only invalid input fails the request.
func (h *Handler) CreateRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	onProgress := ProgressFunc(nil)
	if h.notifier != nil {
		onProgress = func(p Progress) { h.notifier.Broadcast(p) }
	}

	run, err := h.svc.Run(c.Request().Context(), req, onProgress)
	if err != nil {
		switch {
		case errors.Is(err, query.ErrInvalidInterval),
			errors.Is(err, ErrNoSources),
			errors.Is(err, ErrNoIndicators):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.store != nil {
		if err := h.store.SaveRun(c.Request().Context(), run); err != nil {
			// the computation succeeded; persistence trouble is reported
			// but does not fail the request
			h.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("saving run failed")
		}
	}
	return c.JSON(http.StatusCreated, run)
}

func (h *Handler) GetRun(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run persistence not configured")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	run, err := h.store.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListIndicators(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Definitions())
}

type sourceInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (h *Handler) ListSources(c echo.Context) error {
	descs := h.svc.SourceList()
	out := make([]sourceInfo, len(descs))
	for i, d := range descs {
		out[i] = sourceInfo{Code: d.Code, Name: d.DisplayName()}
	}
	return c.JSON(http.StatusOK, out)
}
