package lab

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
	api.POST("/labs", h.CollectPanels)
}

type panelRequest struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Sources  []string `json:"sources"`
	Patients []string `json:"patients"`
}

// CollectPanels returns the consolidated lab panel per patient for the
// period, parameter codes canonicalized.
func (h *Handler) CollectPanels(c echo.Context) error {
	var req panelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
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

	out := h.collector.Collect(c.Request().Context(), req.Patients, sources, iv)
	if out == nil {
		out = []Panel{}
	}
	return c.JSON(http.StatusOK, out)
}
