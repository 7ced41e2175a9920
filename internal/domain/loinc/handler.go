package loinc

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/auth"
	"github.com/adamlmu/CDSS-mini-project-pt1/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("physician", "nurse")

	g := api.Group("", role)
	g.GET("/loinc", h.SearchConcepts)
	g.GET("/loinc/:code", h.GetConcept)

	api.POST("/loinc/import", h.ImportConcepts, auth.RequireRole("admin"))
}

// ImportConcepts loads a LOINC CSV export posted as the request body.
// ?force=true reloads even when the dictionary is already seeded.
func (h *Handler) ImportConcepts(c echo.Context) error {
	importer := NewImporter(h.svc.repo, h.svc.log)
	importer.Force = c.QueryParam("force") == "true"

	n, err := importer.Import(c.Request().Context(), c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}

func (h *Handler) GetConcept(c echo.Context) error {
	code := c.Param("code")
	concept, err := h.svc.Get(c.Request().Context(), code)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if concept == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown loinc code")
	}
	return c.JSON(http.StatusOK, concept)
}

func (h *Handler) SearchConcepts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Concept{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
