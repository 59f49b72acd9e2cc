package instrument

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/query"
	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/source"
)

type Handler struct {
	collector *Collector
	registry  *source.Registry
}

func NewHandler(collector *Collector, registry *source.Registry) *Handler {
	return &Handler{collector: collector, registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/instruments", h.ListInstruments)
	api.POST("/assessments", h.CollectAssessments)
}

func (h *Handler) ListInstruments(c echo.Context) error {
	return c.JSON(http.StatusOK, All())
}

type assessmentRequest struct {
	Instrument string   `json:"instrument"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Sources    []string `json:"sources"`
	Patients   []string `json:"patients"`
}

// CollectAssessments returns the latest classified assessment per patient
// for one instrument over the period.
func (h *Handler) CollectAssessments(c echo.Context) error {
	var req assessmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	in, ok := Parse(req.Instrument)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown instrument: "+req.Instrument)
	}
	iv, err := query.ParseInterval(req.Start, req.End)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Patients) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no patients given")
	}

	sources := h.registry.All()
	if len(req.Sources) > 0 {
		sources, err = h.registry.Select(req.Sources)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	out := h.collector.Collect(c.Request().Context(), in, req.Patients, sources, iv)
	if out == nil {
		out = []Assessment{}
	}
	return c.JSON(http.StatusOK, out)
}
