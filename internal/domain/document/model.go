package document

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/visitrecon/internal/domain/quality"
	"github.com/ehr/visitrecon/internal/domain/record"
)

// SchemaVersion is the version of the canonical document layout.
const SchemaVersion = "2.0"

// MedicalDocument is the canonical, reconciled record of one scanned
// document.
type MedicalDocument struct {
	ID                   uuid.UUID                `json:"id"`
	SchemaVersion        string                   `json:"schema_version"`
	SourceName           string                   `json:"source_name,omitempty"`
	Visits               []record.ReconciledVisit `json:"visits"`
	DataQuality          quality.DataQuality      `json:"data_quality"`
	ProcessedAt          time.Time                `json:"processed_at"`
	ProcessingDurationMS int64                    `json:"processing_duration_ms"`
	OCRConfidenceAvg     float64                  `json:"ocr_confidence_avg"`
	PageCount            int                      `json:"page_count"`
	Warnings             []string                 `json:"warnings"`
	Errors               []string                 `json:"errors"`
}

// ReviewRequired reports whether any visit is flagged for manual review.
func (d *MedicalDocument) ReviewRequired() bool {
	for _, v := range d.Visits {
		if v.ManualReviewRequired {
			return true
		}
	}
	return false
}

// Summary is the list view of a stored document.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	SourceName     string    `json:"source_name,omitempty"`
	SchemaVersion  string    `json:"schema_version"`
	PageCount      int       `json:"page_count"`
	VisitCount     int       `json:"visit_count"`
	ReviewRequired bool      `json:"review_required"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Summarize returns the list view of d.
func (d *MedicalDocument) Summarize() *Summary {
	return &Summary{
		ID:             d.ID,
		SourceName:     d.SourceName,
		SchemaVersion:  d.SchemaVersion,
		PageCount:      d.PageCount,
		VisitCount:     len(d.Visits),
		ReviewRequired: d.ReviewRequired(),
		ProcessedAt:    d.ProcessedAt,
	}
}
