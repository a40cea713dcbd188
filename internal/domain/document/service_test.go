package document

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/visitrecon/internal/domain/quality"
	"github.com/ehr/visitrecon/internal/domain/reconcile"
	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/domain/segment"
	"github.com/ehr/visitrecon/internal/platform/ccda"
	"github.com/ehr/visitrecon/internal/platform/extractor"
)

type recorderStub struct {
	mu        sync.Mutex
	documents int
	failures  int
	review    bool
}

func (r *recorderStub) ObserveDocument(pages, visits int, reviewRequired bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents++
	r.review = reviewRequired
}

func (r *recorderStub) ObserveExtractionFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func newTestService(t *testing.T, ext extractor.FieldExtractor, opts ...Option) (*Service, *MemoryRepo) {
	t.Helper()
	seg, err := segment.NewSegmenter(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}
	rec, err := reconcile.New(0.85)
	if err != nil {
		t.Fatalf("reconcile.New: %v", err)
	}
	assessor, err := quality.NewAssessor(quality.DefaultReviewThreshold)
	if err != nil {
		t.Fatalf("NewAssessor: %v", err)
	}
	repo := NewMemoryRepo()
	svc := NewService(repo, seg, ext, rec, assessor, opts...)
	return svc, repo
}

func testPages() []segment.PageExtraction {
	return []segment.PageExtraction{
		{PageIndex: 3, Text: "Date of Service: 03/02/2024\nUrinalysis ordered", Confidence: 0.6},
		{PageIndex: 1, Text: "Visit Date: 01/15/2024\nMetformin 500mg BID", Confidence: 0.9},
		{PageIndex: 2, Text: "continued\nHbA1c 7.2 %", Confidence: 0.8},
	}
}

func firstVisit() record.Visit {
	return record.Visit{
		VisitID: "visit_001",
		Medications: []record.Medication{
			{Name: "Metformin", Dose: "500mg", Frequency: "BID", SourcePage: 1},
			{Name: "metformin", Dose: "500mg", Frequency: "BID", SourcePage: 2},
		},
		Results: []record.Result{
			{TestName: "HbA1c", Value: "7.2", Unit: "%", SourcePage: 2},
		},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestProcess_Pipeline(t *testing.T) {
	stub := &recorderStub{}
	svc, repo := newTestService(t, extractor.NewStatic([]record.Visit{firstVisit()}), WithRecorder(stub))

	doc, err := svc.Process(context.Background(), "scan-0042.pdf", testPages())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if doc.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %s, got %s", SchemaVersion, doc.SchemaVersion)
	}
	if doc.PageCount != 3 {
		t.Errorf("expected 3 pages, got %d", doc.PageCount)
	}
	if !approx(doc.OCRConfidenceAvg, (0.6+0.9+0.8)/3) {
		t.Errorf("unexpected OCR confidence average %v", doc.OCRConfidenceAvg)
	}
	if len(doc.Visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(doc.Visits))
	}

	v1 := doc.Visits[0]
	if v1.VisitID != "visit_001" {
		t.Errorf("expected visit_001, got %s", v1.VisitID)
	}
	if v1.VisitDate == nil || v1.VisitDate.String() != "2024-01-15" {
		t.Errorf("expected chunk date 2024-01-15, got %v", v1.VisitDate)
	}
	if len(v1.RawSourcePages) != 2 || v1.RawSourcePages[0] != 1 || v1.RawSourcePages[1] != 2 {
		t.Errorf("expected pages [1 2], got %v", v1.RawSourcePages)
	}
	if len(v1.Medications) != 1 {
		t.Fatalf("expected duplicate medications merged, got %d", len(v1.Medications))
	}
	if pages := v1.Medications[0].SourcePages; len(pages) != 2 {
		t.Errorf("expected merged source pages [1 2], got %v", pages)
	}
	if !approx(v1.ExtractionConfidence, 0.85) {
		t.Errorf("expected extraction confidence 0.85, got %v", v1.ExtractionConfidence)
	}
	if v1.ManualReviewRequired {
		t.Errorf("visit_001 should not need review, reasons %v", v1.ReviewReasons)
	}

	v2 := doc.Visits[1]
	if v2.VisitDate == nil || v2.VisitDate.String() != "2024-03-02" {
		t.Errorf("expected placeholder date 2024-03-02, got %v", v2.VisitDate)
	}
	if !v2.ManualReviewRequired {
		t.Fatal("expected placeholder visit to need review")
	}
	var sawFailure, sawLowConfidence bool
	for _, r := range v2.ReviewReasons {
		if strings.HasPrefix(r, ReasonExtractionFailed) {
			sawFailure = true
		}
		if r == quality.ReasonLowConfidence {
			sawLowConfidence = true
		}
	}
	if !sawFailure || !sawLowConfidence {
		t.Errorf("expected extraction failure and low confidence reasons, got %v", v2.ReviewReasons)
	}
	if len(doc.Errors) != 1 || !strings.HasPrefix(doc.Errors[0], "visit_002: ") {
		t.Errorf("expected one visit_002 error, got %v", doc.Errors)
	}
	if len(doc.DataQuality.UnclearSections) != 1 || doc.DataQuality.UnclearSections[0] != "visit_002" {
		t.Errorf("unexpected unclear sections %v", doc.DataQuality.UnclearSections)
	}

	stored, err := repo.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if len(stored.Visits) != 2 {
		t.Errorf("expected stored document with 2 visits, got %d", len(stored.Visits))
	}

	if stub.documents != 1 || stub.failures != 1 || !stub.review {
		t.Errorf("unexpected recorder state %+v", stub)
	}
}

func TestProcess_DoesNotReorderCallerPages(t *testing.T) {
	svc, _ := newTestService(t, extractor.NewStatic(nil))
	pages := testPages()

	if _, err := svc.Process(context.Background(), "", pages); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if pages[0].PageIndex != 3 {
		t.Error("Process must not sort the caller's slice in place")
	}
}

func TestProcess_ValidationErrors(t *testing.T) {
	svc, repo := newTestService(t, extractor.NewStatic(nil), WithMaxPages(2))

	if _, err := svc.Process(context.Background(), "", nil); !errors.Is(err, segment.ErrNoPages) {
		t.Errorf("expected ErrNoPages, got %v", err)
	}
	if _, err := svc.Process(context.Background(), "", testPages()); !errors.Is(err, segment.ErrTooManyPages) {
		t.Errorf("expected ErrTooManyPages, got %v", err)
	}
	dup := []segment.PageExtraction{{PageIndex: 1, Confidence: 1}, {PageIndex: 1, Confidence: 1}}
	if _, err := svc.Process(context.Background(), "", dup); !errors.Is(err, segment.ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage, got %v", err)
	}

	_, total, _ := repo.List(context.Background(), ListFilter{}, 10, 0)
	if total != 0 {
		t.Errorf("rejected input must not be stored, found %d documents", total)
	}
}

func TestProcess_CollectsEnumWarnings(t *testing.T) {
	v := firstVisit()
	v.ProblemList = []record.Problem{{Problem: "Hypertension", Status: "improving", SourcePage: 1}}
	svc, _ := newTestService(t, extractor.NewStatic([]record.Visit{v}))

	doc, err := svc.Process(context.Background(), "", testPages()[1:])
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(doc.Warnings) != 1 || !strings.Contains(doc.Warnings[0], `"improving"`) {
		t.Errorf("expected one status warning, got %v", doc.Warnings)
	}
	if got := doc.Visits[0].ProblemList[0].Status; got != "improving" {
		t.Errorf("unknown status must be preserved, got %q", got)
	}
}

type blockingExtractor struct{}

func (blockingExtractor) Extract(ctx context.Context, chunk segment.VisitChunk) (record.Visit, error) {
	<-ctx.Done()
	return record.Visit{}, ctx.Err()
}

func TestProcess_ContextCanceled(t *testing.T) {
	svc, repo := newTestService(t, blockingExtractor{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Process(ctx, "", testPages()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	_, total, _ := repo.List(context.Background(), ListFilter{}, 10, 0)
	if total != 0 {
		t.Errorf("canceled run must not be stored, found %d documents", total)
	}
}

func TestProcess_UsesClock(t *testing.T) {
	svc, _ := newTestService(t, extractor.NewStatic(nil))
	fixed := time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	doc, err := svc.Process(context.Background(), "", testPages())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !doc.ProcessedAt.Equal(fixed) {
		t.Errorf("expected processed_at %v, got %v", fixed, doc.ProcessedAt)
	}
	if doc.ProcessingDurationMS != 0 {
		t.Errorf("expected zero duration with a fixed clock, got %d", doc.ProcessingDurationMS)
	}
}

func TestFetchDocumentData(t *testing.T) {
	svc, _ := newTestService(t, extractor.NewStatic([]record.Visit{firstVisit()}))
	doc, err := svc.Process(context.Background(), "scan.pdf", testPages())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	data, err := svc.FetchDocumentData(context.Background(), doc.ID.String())
	if err != nil {
		t.Fatalf("FetchDocumentData() error: %v", err)
	}
	if data.DocumentID != doc.ID.String() || data.SourceName != "scan.pdf" || len(data.Visits) != 2 {
		t.Errorf("unexpected document data %+v", data)
	}

	if _, err := svc.FetchDocumentData(context.Background(), "not-a-uuid"); err == nil || errors.Is(err, ccda.ErrDocumentNotFound) {
		t.Errorf("expected invalid id error, got %v", err)
	}
	if _, err := svc.FetchDocumentData(context.Background(), "00000000-0000-0000-0000-000000000001"); !errors.Is(err, ccda.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

type publisherStub struct {
	mu     sync.Mutex
	events []string
	ids    []string
}

func (p *publisherStub) Publish(_ context.Context, eventType, documentID string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	p.ids = append(p.ids, documentID)
}

func TestService_PublishesLifecycleEvents(t *testing.T) {
	pub := &publisherStub{}
	svc, _ := newTestService(t, extractor.NewStatic(nil), WithPublisher(pub))

	doc, err := svc.Process(context.Background(), "", testPages())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if err := svc.Delete(context.Background(), doc.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := svc.Delete(context.Background(), doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := []string{EventProcessed, EventReviewRequired, EventDeleted}
	if len(pub.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, pub.events)
	}
	for i, ev := range want {
		if pub.events[i] != ev {
			t.Errorf("event %d = %s, want %s", i, pub.events[i], ev)
		}
		if pub.ids[i] != doc.ID.String() {
			t.Errorf("event %d carries id %s, want %s", i, pub.ids[i], doc.ID)
		}
	}
}
