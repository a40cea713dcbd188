package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/domain/segment"
)

// Static serves structured visits prepared ahead of time, keyed by visit
// id. It stands in for the remote service in CLI runs and tests.
type Static struct {
	visits map[string]record.Visit
}

// NewStatic indexes visits by VisitID. Later duplicates replace earlier ones.
func NewStatic(visits []record.Visit) *Static {
	s := &Static{visits: make(map[string]record.Visit, len(visits))}
	for _, v := range visits {
		s.visits[v.VisitID] = v
	}
	return s
}

// LoadStatic reads a YAML or JSON file holding a list of visits, or an
// object with a "visits" list.
func LoadStatic(path string) (*Static, error) {
	visits, err := LoadVisits(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(visits), nil
}

// LoadVisits reads a list of visits from a YAML or JSON file.
func LoadVisits(path string) ([]record.Visit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read visits: %w", err)
	}
	var wrapped struct {
		Visits []record.Visit `yaml:"visits"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.Visits != nil {
		return wrapped.Visits, nil
	}
	var visits []record.Visit
	if err := yaml.Unmarshal(data, &visits); err != nil {
		return nil, fmt.Errorf("parse visits %s: %w", filepath.Base(path), err)
	}
	return visits, nil
}

// LoadPages reads a page stream from a YAML or JSON file: either a list of
// pages or an object with a "pages" list.
func LoadPages(path string) ([]segment.PageExtraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pages: %w", err)
	}
	var wrapped struct {
		Pages []segment.PageExtraction `yaml:"pages"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.Pages != nil {
		return wrapped.Pages, nil
	}
	var pages []segment.PageExtraction
	if err := yaml.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parse pages %s: %w", filepath.Base(path), err)
	}
	return pages, nil
}

// Extract returns the prepared visit for chunk.VisitID.
func (s *Static) Extract(ctx context.Context, chunk segment.VisitChunk) (record.Visit, error) {
	if err := ctx.Err(); err != nil {
		return record.Visit{}, err
	}
	v, ok := s.visits[strings.TrimSpace(chunk.VisitID)]
	if !ok {
		return record.Visit{}, fmt.Errorf("%w: %s", ErrNoExtraction, chunk.VisitID)
	}
	return v, nil
}
