package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/visitrecon/internal/domain/quality"
	"github.com/ehr/visitrecon/internal/domain/reconcile"
	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/domain/segment"
	"github.com/ehr/visitrecon/internal/platform/ccda"
	"github.com/ehr/visitrecon/internal/platform/extractor"
)

// ReasonExtractionFailed prefixes the review reason of a visit whose field
// extraction failed.
const ReasonExtractionFailed = "field extraction failed"

// Recorder receives pipeline measurements.
type Recorder interface {
	ObserveDocument(pages, visits int, reviewRequired bool, elapsed time.Duration)
	ObserveExtractionFailure()
}

// Document lifecycle events.
const (
	EventProcessed      = "document.processed"
	EventReviewRequired = "document.review_required"
	EventDeleted        = "document.deleted"
)

// Publisher is notified after a document is stored or deleted. Payloads
// carry the document summary, never visit content.
type Publisher interface {
	Publish(ctx context.Context, eventType, documentID string, payload interface{})
}

type nopRecorder struct{}

func (nopRecorder) ObserveDocument(int, int, bool, time.Duration) {}
func (nopRecorder) ObserveExtractionFailure()                     {}

// Service runs the document pipeline and manages stored documents.
type Service struct {
	repo       Repository
	segmenter  *segment.Segmenter
	extractor  extractor.FieldExtractor
	reconciler *reconcile.Reconciler
	assessor   *quality.Assessor
	recorder   Recorder
	publisher  Publisher
	logger     zerolog.Logger
	maxPages   int
	workers    int
	logPHI     bool
	now        func() time.Time
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithPublisher sends lifecycle events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMaxPages caps the page count of a single document. Zero disables the
// limit.
func WithMaxPages(n int) Option {
	return func(s *Service) { s.maxPages = n }
}

// WithWorkers bounds concurrent field extraction calls.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithPHILogging allows chunk text in debug logs.
func WithPHILogging(enabled bool) Option {
	return func(s *Service) { s.logPHI = enabled }
}

func NewService(repo Repository, seg *segment.Segmenter, ext extractor.FieldExtractor, rec *reconcile.Reconciler, assessor *quality.Assessor, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		segmenter:  seg,
		extractor:  ext,
		reconciler: rec,
		assessor:   assessor,
		recorder:   nopRecorder{},
		logger:     zerolog.Nop(),
		workers:    4,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process turns a page stream into a reconciled MedicalDocument and stores
// it. Pages are sorted by index before segmentation. A chunk whose
// extraction fails becomes a placeholder visit flagged for review.
func (s *Service) Process(ctx context.Context, sourceName string, pages []segment.PageExtraction) (*MedicalDocument, error) {
	start := s.now()
	if err := segment.Validate(pages, s.maxPages); err != nil {
		return nil, err
	}
	ordered := append([]segment.PageExtraction(nil), pages...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageIndex < ordered[j].PageIndex })

	chunks := s.segmenter.Segment(ordered)
	visits, failures, err := s.extractAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	doc := &MedicalDocument{
		ID:            uuid.New(),
		SchemaVersion: SchemaVersion,
		SourceName:    sourceName,
		PageCount:     len(ordered),
		Warnings:      []string{},
		Errors:        []string{},
	}
	for _, v := range visits {
		doc.Warnings = append(doc.Warnings, v.Warnings()...)
	}

	reconciled, err := s.reconciler.Visits(ctx, visits)
	if err != nil {
		return nil, err
	}
	for i := range reconciled {
		reconciled[i].ExtractionConfidence = chunks[i].Confidence
		if failures[i] != "" {
			reconciled[i].ReviewReasons = append(reconciled[i].ReviewReasons, failures[i])
			doc.Errors = append(doc.Errors, fmt.Sprintf("%s: %s", chunks[i].VisitID, failures[i]))
		}
	}

	reconciled, err = s.reconciler.Document(ctx, reconciled)
	if err != nil {
		return nil, err
	}
	for i := range reconciled {
		s.assessor.Flag(&reconciled[i])
	}
	doc.Visits = reconciled
	doc.DataQuality = s.assessor.Assess(reconciled)

	confidences := make([]float64, len(ordered))
	for i, p := range ordered {
		confidences[i] = p.Confidence
	}
	doc.OCRConfidenceAvg = quality.Mean(confidences)
	doc.ProcessedAt = s.now().UTC()
	elapsed := s.now().Sub(start)
	doc.ProcessingDurationMS = elapsed.Milliseconds()

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	s.recorder.ObserveDocument(doc.PageCount, len(doc.Visits), doc.ReviewRequired(), elapsed)
	s.logger.Info().
		Str("document_id", doc.ID.String()).
		Int("pages", doc.PageCount).
		Int("visits", len(doc.Visits)).
		Bool("review_required", doc.ReviewRequired()).
		Int("warnings", len(doc.Warnings)).
		Int("errors", len(doc.Errors)).
		Dur("duration", elapsed).
		Msg("document processed")

	summary := doc.Summarize()
	s.publish(ctx, EventProcessed, doc.ID, summary)
	if summary.ReviewRequired {
		s.publish(ctx, EventReviewRequired, doc.ID, summary)
	}
	return doc, nil
}

func (s *Service) publish(ctx context.Context, eventType string, id uuid.UUID, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, eventType, id.String(), payload)
}

// extractAll runs field extraction for every chunk. The returned failures
// slice holds a review reason for each chunk whose extraction failed.
func (s *Service) extractAll(ctx context.Context, chunks []segment.VisitChunk) ([]record.Visit, []string, error) {
	visits := make([]record.Visit, len(chunks))
	failures := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range chunks {
		i := i
		g.Go(func() error {
			chunk := chunks[i]
			if s.logPHI {
				s.logger.Debug().Str("visit_id", chunk.VisitID).Str("text", chunk.RawText).Msg("extracting visit")
			}
			v, err := s.extractor.Extract(gctx, chunk)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
				}
				s.recorder.ObserveExtractionFailure()
				s.logger.Warn().Err(err).Str("visit_id", chunk.VisitID).Ints("pages", chunk.Pages).Msg("field extraction failed")
				failures[i] = fmt.Sprintf("%s: %v", ReasonExtractionFailed, err)
				v = record.Visit{}
			}
			visits[i] = fillFromChunk(v, chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("extract visits: %w", err)
	}
	return visits, failures, nil
}

// fillFromChunk pins the visit to its chunk: the id always comes from the
// chunk, the date and pages only when the extractor left them empty.
func fillFromChunk(v record.Visit, chunk segment.VisitChunk) record.Visit {
	v.VisitID = chunk.VisitID
	if v.VisitDate == nil {
		v.VisitDate = chunk.VisitDate
	}
	if len(v.RawSourcePages) == 0 {
		v.RawSourcePages = append([]int{}, chunk.Pages...)
	}
	return v
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Summary, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("document_id", id.String()).Msg("document deleted")
	s.publish(ctx, EventDeleted, id, nil)
	return nil
}

// FetchDocumentData loads a stored document for CCD rendering.
func (s *Service) FetchDocumentData(ctx context.Context, documentID string) (*ccda.DocumentData, error) {
	id, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q", documentID)
	}
	doc, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ccda.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ccda.DocumentData{
		DocumentID:  doc.ID.String(),
		SourceName:  doc.SourceName,
		ProcessedAt: doc.ProcessedAt,
		Visits:      doc.Visits,
	}, nil
}
