package reconcile

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/platform/auth"
)

// Handler exposes reconciliation of already extracted visits over HTTP.
type Handler struct {
	reconciler *Reconciler
}

func NewHandler(r *Reconciler) *Handler {
	return &Handler{reconciler: r}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reconcile", h.Reconcile, auth.RequireScope(auth.ScopeReconcile))
}

// ReconcileRequest is the body of POST /reconcile. DocumentPass runs the
// second, document-level merge over each reconciled visit.
type ReconcileRequest struct {
	Visits       []record.Visit `json:"visits"`
	DocumentPass bool           `json:"document_pass"`
}

type ReconcileResponse struct {
	Threshold float64                  `json:"threshold"`
	Visits    []record.ReconciledVisit `json:"visits"`
}

func (h *Handler) Reconcile(c echo.Context) error {
	var req ReconcileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Visits) == 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "at least one visit is required")
	}

	ctx := c.Request().Context()
	visits, err := h.reconciler.Visits(ctx, req.Visits)
	if err == nil && req.DocumentPass {
		visits, err = h.reconciler.Document(ctx, visits)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ReconcileResponse{Threshold: h.reconciler.Threshold(), Visits: visits})
}
