package document

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/visitrecon/internal/domain/segment"
	"github.com/ehr/visitrecon/internal/platform/auth"
	"github.com/ehr/visitrecon/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireScope(auth.ScopeDocumentsRead))
	read.GET("/documents", h.ListDocuments)
	read.GET("/documents/:id", h.GetDocument)

	write := api.Group("", auth.RequireScope(auth.ScopeDocumentsWrite))
	write.POST("/documents", h.ProcessDocument)
	write.DELETE("/documents/:id", h.DeleteDocument)
}

// ProcessRequest is the body of POST /documents.
type ProcessRequest struct {
	SourceName string                   `json:"source_name"`
	Pages      []segment.PageExtraction `json:"pages"`
}

func (h *Handler) ProcessDocument(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doc, err := h.svc.Process(c.Request().Context(), req.SourceName, req.Pages)
	switch {
	case errors.Is(err, segment.ErrTooManyPages):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, segment.ErrNoPages), errors.Is(err, segment.ErrInvalidPage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Set("document_id", doc.ID.String())
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) GetDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	doc, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}

// ListDocuments handles GET /documents. review_required=true restricts the
// list to documents with at least one flagged visit.
func (h *Handler) ListDocuments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	if raw := c.QueryParam("review_required"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid review_required")
		}
		filter.ReviewRequired = v
	}
	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Path()))
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	err = h.svc.Delete(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
