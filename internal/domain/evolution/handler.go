package evolution

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("doctor", "nurse"))
	g.GET("/admissions/:id/evolutions", h.ListRecent)
	g.GET("/admissions/:id/evolutions/all", h.ListAll)
	g.GET("/evolutions/:id", h.GetNote)
	g.POST("/admissions/:id/evolutions", h.Record)
}

func (h *Handler) Record(c echo.Context) error {
	admissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var params RecordParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	params.AdmissionID = admissionID
	e, err := h.svc.Record(c.Request().Context(), params)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetNote(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListRecent(c echo.Context) error {
	admissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n := 0
	if raw := c.QueryParam("n"); raw != "" {
		n, _ = strconv.Atoi(raw)
	}
	notes, err := h.svc.ListRecent(c.Request().Context(), admissionID, n)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) ListAll(c echo.Context) error {
	admissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	notes, err := h.svc.ListAll(c.Request().Context(), admissionID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, notes)
}
