package reconcile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func postReconcile(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	r, err := New(0.85)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e := echo.New()
	NewHandler(r).RegisterRoutes(e.Group("/api/v1"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Reconcile(t *testing.T) {
	body := `{
		"document_pass": true,
		"visits": [{
			"visit_id": "visit_001",
			"visit_date": "2024-01-15",
			"raw_source_pages": [1, 2],
			"medications": [
				{"name": "Metformin", "dose": "500mg", "source_page": 1},
				{"name": "metformin", "dose": "1000mg", "source_page": 2}
			],
			"results": [
				{"test_name": "HbA1c", "value": 7.2, "unit": "%", "source_page": 1},
				{"test_name": "HbA1c", "value": "7.8", "unit": "%", "source_page": 2}
			]
		}]
	}`
	rec := postReconcile(t, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ReconcileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Threshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", resp.Threshold)
	}
	if len(resp.Visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(resp.Visits))
	}
	v := resp.Visits[0]
	if len(v.Medications) != 1 {
		t.Fatalf("expected medications merged, got %d", len(v.Medications))
	}
	if got := v.Medications[0].ValueConflicts["dose"]; len(got) != 2 || got[0] != "500mg" || got[1] != "1000mg" {
		t.Errorf("expected dose conflict [500mg 1000mg], got %v", got)
	}
	if len(v.Results) != 1 || v.Results[0].Value != "7.2" {
		t.Fatalf("expected one result keeping 7.2, got %+v", v.Results)
	}
	if c := v.Results[0].ValueConflicts; len(c) != 1 || c[0].Value != "7.8" || c[0].SourcePage != 2 {
		t.Errorf("expected 7.8 conflict from page 2, got %+v", c)
	}
}

func TestHandler_Reconcile_Errors(t *testing.T) {
	if rec := postReconcile(t, `{"visits": []}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for no visits, got %d", rec.Code)
	}
	if rec := postReconcile(t, `{"visits": [`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}
