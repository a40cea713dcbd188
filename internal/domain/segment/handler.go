package segment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/visitrecon/internal/platform/auth"
)

// Handler exposes segmentation over HTTP.
type Handler struct {
	segmenter *Segmenter
	maxPages  int
}

func NewHandler(segmenter *Segmenter, maxPages int) *Handler {
	return &Handler{segmenter: segmenter, maxPages: maxPages}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/segment", h.Segment, auth.RequireScope(auth.ScopeReconcile))
}

// SegmentRequest is the body of POST /segment.
type SegmentRequest struct {
	Pages []PageExtraction `json:"pages"`
}

// SegmentResponse lists the chunks in document order.
type SegmentResponse struct {
	Chunks []VisitChunk `json:"chunks"`
}

func (h *Handler) Segment(c echo.Context) error {
	var req SegmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := Validate(req.Pages, h.maxPages); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrTooManyPages) {
			status = http.StatusRequestEntityTooLarge
		}
		return echo.NewHTTPError(status, err.Error())
	}
	return c.JSON(http.StatusOK, SegmentResponse{Chunks: h.segmenter.Segment(req.Pages)})
}
