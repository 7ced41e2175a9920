package observation

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/auth"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/clock"
)

// ConceptResolver supplies display names for LOINC codes so history
// responses can carry the dictionary entry alongside the facts.
type ConceptResolver interface {
	DisplayName(ctx context.Context, loincNum string) (string, error)
}

type Handler struct {
	svc      *Service
	clk      clock.Clock
	concepts ConceptResolver
}

func NewHandler(svc *Service, clk clock.Clock, concepts ConceptResolver) *Handler {
	return &Handler{svc: svc, clk: clk, concepts: concepts}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("physician", "nurse")

	g := api.Group("", role)
	g.POST("/patients/:id/observations", h.CreateObservation)
	g.GET("/patients/:id/observations", h.ObservationHistory)
	g.POST("/patients/:id/observations/retro-update", h.RetroUpdate)
	g.POST("/patients/:id/observations/retro-delete", h.RetroDelete)
}

type createObservationRequest struct {
	LoincNum string  `json:"loinc_num"`
	Value    float64 `json:"value_num"`
	Start    string  `json:"start"`
	End      string  `json:"end,omitempty"`
}

func (h *Handler) CreateObservation(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var req createObservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	now := h.clk.Now()
	start, err := clock.Resolve(req.Start, now)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start: "+err.Error())
	}
	end, err := clock.ResolveOptional(req.End, now)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end: "+err.Error())
	}

	f, err := h.svc.Create(c.Request().Context(), patientID, req.LoincNum, req.Value, start, end)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

type historyResponse struct {
	LoincNum   string  `json:"loinc_num"`
	CommonName string  `json:"common_name,omitempty"`
	Facts      []*Fact `json:"facts"`
}

func (h *Handler) ObservationHistory(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	loincNum := c.QueryParam("loinc")
	if loincNum == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "loinc query parameter is required")
	}

	now := h.clk.Now()
	since, err := clock.Resolve(c.QueryParam("since"), now)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "since: "+err.Error())
	}
	until, err := clock.Resolve(c.QueryParam("until"), now)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "until: "+err.Error())
	}

	facts, err := h.svc.History(c.Request().Context(), patientID, loincNum, since, until)
	if err != nil {
		return mapServiceError(err)
	}
	if facts == nil {
		facts = []*Fact{}
	}

	resp := historyResponse{LoincNum: loincNum, Facts: facts}
	if h.concepts != nil {
		if name, err := h.concepts.DisplayName(c.Request().Context(), loincNum); err == nil {
			resp.CommonName = name
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type retroUpdateRequest struct {
	LoincNum string  `json:"loinc_num"`
	Target   string  `json:"target"`
	Value    float64 `json:"value_num"`
}

func (h *Handler) RetroUpdate(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var req retroUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	target, err := clock.Resolve(req.Target, h.clk.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "target: "+err.Error())
	}

	newID, err := h.svc.RetroUpdate(c.Request().Context(), patientID, req.LoincNum, target, req.Value)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"new_fact_id": newID.String()})
}

type retroDeleteRequest struct {
	LoincNum string `json:"loinc_num"`
	Target   string `json:"target"`
}

func (h *Handler) RetroDelete(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	var req retroDeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	target, err := clock.Resolve(req.Target, h.clk.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "target: "+err.Error())
	}

	closedID, err := h.svc.RetroDelete(c.Request().Context(), patientID, req.LoincNum, target)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"closed_fact_id": closedID.String()})
}

// mapServiceError translates the engine's error taxonomy to HTTP statuses.
// No-match targets are spelled out rather than approximated; conflicts tell
// the caller to re-issue; invariant violations surface as server faults.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, ErrNoMatchingFact):
		return echo.NewHTTPError(http.StatusNotFound, ErrNoMatchingFact.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrConflict.Error())
	case errors.Is(err, ErrInvariantViolation):
		return echo.NewHTTPError(http.StatusInternalServerError, ErrInvariantViolation.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
