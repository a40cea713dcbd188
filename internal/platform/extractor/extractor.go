// Package extractor contains the clients for the external field extraction
// service that turns a visit chunk into a structured visit record.
package extractor

import (
	"context"
	"errors"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/domain/segment"
)

// ErrNoExtraction is returned when no structured record is available for a
// chunk.
var ErrNoExtraction = errors.New("no extraction available for visit")

// FieldExtractor converts one visit chunk into a structured visit.
type FieldExtractor interface {
	Extract(ctx context.Context, chunk segment.VisitChunk) (record.Visit, error)
}

// Request is the payload sent to a remote field extractor.
type Request struct {
	VisitID   string       `json:"visit_id"`
	Pages     []int        `json:"pages"`
	VisitDate *record.Date `json:"visit_date"`
	Text      string       `json:"text"`
}

func newRequest(chunk segment.VisitChunk) Request {
	return Request{
		VisitID:   chunk.VisitID,
		Pages:     chunk.Pages,
		VisitDate: chunk.VisitDate,
		Text:      chunk.RawText,
	}
}
