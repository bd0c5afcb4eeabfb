package export

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/omopexport/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the job status surface under api (e.g. /api/v1).
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/exports")
	g.POST("", h.CreateExport)
	g.GET("", h.ListExports)
	g.GET("/watermarks", h.GetWatermarks)
	g.GET("/:id", h.GetExport)
}

type createExportRequest struct {
	TriggeredBy TriggerSource `json:"triggered_by"`
	FullRefresh bool          `json:"full_refresh"`
}

func (h *Handler) CreateExport(c echo.Context) error {
	var req createExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = TriggerManual
	}
	job, err := h.svc.Submit(c.Request().Context(), Trigger{TriggeredBy: req.TriggeredBy, FullRefresh: req.FullRefresh})
	if err != nil {
		if errors.Is(err, ErrInvalidTrigger) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, job)
}

func (h *Handler) GetExport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	job, err := h.svc.GetJob(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "export job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) ListExports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListJobs(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Job{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetWatermarks(c echo.Context) error {
	marks, err := h.svc.Watermarks(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, marks)
}
