// Package quality rolls page confidence up to chunks and visits and decides
// which visits need manual review.
package quality

import (
	"fmt"

	"github.com/ehr/visitrecon/internal/domain/record"
)

// DefaultReviewThreshold is the extraction confidence below which a visit is
// flagged for manual review.
const DefaultReviewThreshold = 0.70

// Review reasons attached to visits.
const (
	ReasonLowConfidence  = "low extraction confidence"
	ReasonValueConflicts = "value conflicts require review"
	ReasonMissingPages   = "missing source pages"
)

// DataQuality summarizes a processed document.
type DataQuality struct {
	CompletenessScore     float64  `json:"completeness_score" yaml:"completeness_score"`
	ConfidenceScore       float64  `json:"confidence_score" yaml:"confidence_score"`
	UnclearSections       []string `json:"unclear_sections" yaml:"unclear_sections"`
	MissingCriticalFields []string `json:"missing_critical_fields" yaml:"missing_critical_fields"`
}

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Assessor applies a review threshold.
type Assessor struct {
	threshold float64
}

// NewAssessor returns an Assessor flagging visits below threshold.
func NewAssessor(threshold float64) (*Assessor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("review threshold must be within [0, 1], got %v", threshold)
	}
	return &Assessor{threshold: threshold}, nil
}

// ReviewReasons returns why v needs manual review, in a fixed order. An
// empty result means no review is needed.
func (a *Assessor) ReviewReasons(v record.ReconciledVisit) []string {
	var reasons []string
	if v.ExtractionConfidence < a.threshold {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if v.HasConflicts() {
		reasons = append(reasons, ReasonValueConflicts)
	}
	if len(v.RawSourcePages) == 0 {
		reasons = append(reasons, ReasonMissingPages)
	}
	return reasons
}

// Flag sets the review fields of v, keeping any reasons already present.
func (a *Assessor) Flag(v *record.ReconciledVisit) {
	for _, r := range a.ReviewReasons(*v) {
		if !contains(v.ReviewReasons, r) {
			v.ReviewReasons = append(v.ReviewReasons, r)
		}
	}
	v.ManualReviewRequired = len(v.ReviewReasons) > 0
}

// Assess scores a set of processed visits. A visit counts as complete when
// it has a date and at least one clinical entry.
func (a *Assessor) Assess(visits []record.ReconciledVisit) DataQuality {
	q := DataQuality{
		UnclearSections:       []string{},
		MissingCriticalFields: []string{},
	}
	if len(visits) == 0 {
		return q
	}

	complete := 0
	confidences := make([]float64, 0, len(visits))
	for _, v := range visits {
		confidences = append(confidences, v.ExtractionConfidence)
		hasDate := v.VisitDate != nil
		hasEntries := v.EntryCount() > 0
		if hasDate && hasEntries {
			complete++
		}
		if !hasDate {
			q.MissingCriticalFields = append(q.MissingCriticalFields, v.VisitID+".visit_date")
		}
		if len(v.RawSourcePages) == 0 {
			q.MissingCriticalFields = append(q.MissingCriticalFields, v.VisitID+".raw_source_pages")
		}
		if v.ManualReviewRequired {
			q.UnclearSections = append(q.UnclearSections, v.VisitID)
		}
	}
	q.CompletenessScore = float64(complete) / float64(len(visits))
	q.ConfidenceScore = Mean(confidences)
	return q
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
