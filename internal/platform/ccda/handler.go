package ccda

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/visitrecon/internal/platform/auth"
)

// ErrDocumentNotFound is returned by a DataFetcher for unknown ids.
var ErrDocumentNotFound = errors.New("document not found")

// DataFetcher loads the reconciled content of a stored document.
type DataFetcher interface {
	FetchDocumentData(ctx context.Context, documentID string) (*DocumentData, error)
}

// Handler serves CCD renderings of processed documents.
type Handler struct {
	generator *Generator
	fetcher   DataFetcher
}

func NewHandler(generator *Generator, fetcher DataFetcher) *Handler {
	return &Handler{generator: generator, fetcher: fetcher}
}

// RegisterRoutes registers the CCD endpoint on the provided route group.
//
//	GET /api/v1/documents/:id/ccd
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/documents/:id/ccd", h.GenerateCCD, auth.RequireScope(auth.ScopeDocumentsRead))
}

// GenerateCCD handles GET /api/v1/documents/:id/ccd.
func (h *Handler) GenerateCCD(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document id is required")
	}

	data, err := h.fetcher.FetchDocumentData(c.Request().Context(), id)
	if errors.Is(err, ErrDocumentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	xmlData, err := h.generator.GenerateCCD(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CCD: "+err.Error())
	}
	return c.Blob(http.StatusOK, "application/xml", xmlData)
}
