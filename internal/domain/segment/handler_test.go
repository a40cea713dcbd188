package segment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestHandler_Segment(t *testing.T) {
	seg, _ := NewSegmenter(zerolog.Nop())
	h := NewHandler(seg, 100)
	e := echo.New()

	body := `{"pages":[{"page_index":1,"text":"Visit Date: 02/03/2024","confidence":0.9},
		{"page_index":2,"text":"Admission Date: 02/10/2024","confidence":0.7}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/segment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Segment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp SegmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Chunks) != 2 || resp.Chunks[1].VisitID != "visit_002" {
		t.Errorf("unexpected chunks %+v", resp.Chunks)
	}
}

func TestHandler_Segment_TooManyPages(t *testing.T) {
	seg, _ := NewSegmenter(zerolog.Nop())
	h := NewHandler(seg, 1)
	e := echo.New()

	body := `{"pages":[{"page_index":1,"text":"a","confidence":0.9},{"page_index":2,"text":"b","confidence":0.9}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/segment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Segment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", he.Code)
	}
}

func TestHandler_Segment_EmptyBody(t *testing.T) {
	seg, _ := NewSegmenter(zerolog.Nop())
	h := NewHandler(seg, 10)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/segment", strings.NewReader(`{"pages":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Segment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
