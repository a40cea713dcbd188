// Package segment partitions an ordered page stream into visit chunks.
package segment

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/visitrecon/internal/domain/quality"
)

// DefaultBoundaryPatterns mark a page that opens a new visit. They are
// matched against the start of any line.
var DefaultBoundaryPatterns = []string{
	`(?im)^visit date:`,
	`(?im)^date of service:`,
	`(?im)^encounter date:`,
	`(?im)^admission date:`,
	`(?im)^discharge date:`,
	`(?im)^\d{1,2}/\d{1,2}/\d{2,4}`,
}

// Segmenter groups pages into visits. It is safe for concurrent use.
type Segmenter struct {
	boundaries []*regexp.Regexp
	logger     zerolog.Logger
}

// NewSegmenter compiles the default boundary patterns plus any extra ones.
// Extra patterns are compiled multi-line and case-insensitive.
func NewSegmenter(logger zerolog.Logger, extra ...string) (*Segmenter, error) {
	s := &Segmenter{logger: logger}
	for _, p := range DefaultBoundaryPatterns {
		s.boundaries = append(s.boundaries, regexp.MustCompile(p))
	}
	for _, p := range extra {
		re, err := regexp.Compile("(?im)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid boundary pattern %q: %w", p, err)
		}
		s.boundaries = append(s.boundaries, re)
	}
	return s, nil
}

// IsBoundary reports whether text contains a visit boundary marker.
func (s *Segmenter) IsBoundary(text string) bool {
	for _, re := range s.boundaries {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Segment partitions pages, in the order given, into chunks. A page that
// matches a boundary pattern opens a new chunk unless the current one is
// still empty. Every page lands in exactly one chunk.
func (s *Segmenter) Segment(pages []PageExtraction) []VisitChunk {
	chunks := make([]VisitChunk, 0, 1)
	if len(pages) == 0 {
		return chunks
	}

	var (
		current     = VisitChunk{VisitID: VisitID(1), Pages: []int{}}
		text        strings.Builder
		confidences []float64
	)
	closeChunk := func() {
		current.RawText = text.String()
		current.Confidence = quality.Mean(confidences)
		chunks = append(chunks, current)
	}

	for _, p := range pages {
		if s.IsBoundary(p.Text) && len(current.Pages) > 0 {
			closeChunk()
			current = VisitChunk{VisitID: VisitID(len(chunks) + 1), Pages: []int{}}
			text.Reset()
			confidences = nil
		}

		current.Pages = append(current.Pages, p.PageIndex)
		confidences = append(confidences, p.Confidence)
		fmt.Fprintf(&text, "\n--- Page %d ---\n%s\n", p.PageIndex, p.Text)

		if current.VisitDate == nil {
			if d, ok := ExtractDate(p.Text); ok {
				current.VisitDate = &d
			}
		}
	}
	closeChunk()

	s.logger.Info().
		Int("pages", len(pages)).
		Int("visits", len(chunks)).
		Msg("visit segmentation complete")
	return chunks
}

// VisitID returns the identifier of the n-th visit, starting at 1.
func VisitID(n int) string {
	return fmt.Sprintf("visit_%03d", n)
}

// Validate checks a page stream before segmentation: at least one page, at
// most maxPages when positive, positive unique indexes and confidence
// within [0,1].
func Validate(pages []PageExtraction, maxPages int) error {
	if len(pages) == 0 {
		return ErrNoPages
	}
	if maxPages > 0 && len(pages) > maxPages {
		return fmt.Errorf("%w: %d pages, limit %d", ErrTooManyPages, len(pages), maxPages)
	}
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p.PageIndex <= 0 {
			return fmt.Errorf("%w: page_index must be positive, got %d", ErrInvalidPage, p.PageIndex)
		}
		if seen[p.PageIndex] {
			return fmt.Errorf("%w: duplicate page_index %d", ErrInvalidPage, p.PageIndex)
		}
		seen[p.PageIndex] = true
		if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("%w: page %d confidence %v outside [0, 1]", ErrInvalidPage, p.PageIndex, p.Confidence)
		}
	}
	return nil
}
