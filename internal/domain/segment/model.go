package segment

import (
	"errors"

	"github.com/ehr/visitrecon/internal/domain/record"
)

var (
	ErrNoPages      = errors.New("no pages supplied")
	ErrTooManyPages = errors.New("page count exceeds limit")
	ErrInvalidPage  = errors.New("invalid page")
)

// PageExtraction is the text and confidence the page extractor produced for
// one page.
type PageExtraction struct {
	PageIndex  int     `json:"page_index" yaml:"page_index"`
	Text       string  `json:"text" yaml:"text"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// VisitChunk is a contiguous run of pages belonging to one visit.
type VisitChunk struct {
	VisitID    string       `json:"visit_id" yaml:"visit_id"`
	Pages      []int        `json:"pages" yaml:"pages"`
	VisitDate  *record.Date `json:"visit_date" yaml:"visit_date"`
	RawText    string       `json:"raw_text" yaml:"raw_text"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
}
