package quality

import (
	"math"
	"reflect"
	"testing"

	"github.com/ehr/visitrecon/internal/domain/record"
)

func TestMean(t *testing.T) {
	if Mean(nil) != 0 {
		t.Error("expected 0 for empty input")
	}
	if got := Mean([]float64{0.9, 0.8, 0.7}); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("expected 0.8, got %f", got)
	}
}

func TestNewAssessor(t *testing.T) {
	if _, err := NewAssessor(1.2); err == nil {
		t.Error("expected error for threshold above 1")
	}
	if _, err := NewAssessor(DefaultReviewThreshold); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReviewReasons(t *testing.T) {
	a, _ := NewAssessor(DefaultReviewThreshold)

	ok := record.ReconciledVisit{VisitID: "visit_001", ExtractionConfidence: 0.92, RawSourcePages: []int{1}}
	if reasons := a.ReviewReasons(ok); len(reasons) != 0 {
		t.Errorf("expected no reasons, got %v", reasons)
	}

	bad := record.ReconciledVisit{
		VisitID:              "visit_002",
		ExtractionConfidence: 0.55,
		Medications: []record.MergedMedication{{
			Name: "Metformin", ValueConflicts: record.Conflicts{"dose": {"500mg", "1000mg"}},
		}},
	}
	want := []string{ReasonLowConfidence, ReasonValueConflicts, ReasonMissingPages}
	if got := a.ReviewReasons(bad); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFlag_KeepsExistingReasons(t *testing.T) {
	a, _ := NewAssessor(DefaultReviewThreshold)
	v := record.ReconciledVisit{
		ExtractionConfidence: 0.1,
		RawSourcePages:       []int{3},
		ReviewReasons:        []string{"field extraction failed: timeout", ReasonLowConfidence},
	}
	a.Flag(&v)
	if !v.ManualReviewRequired {
		t.Error("expected manual review")
	}
	want := []string{"field extraction failed: timeout", ReasonLowConfidence}
	if !reflect.DeepEqual(v.ReviewReasons, want) {
		t.Errorf("expected %v, got %v", want, v.ReviewReasons)
	}

	clean := record.ReconciledVisit{ExtractionConfidence: 0.9, RawSourcePages: []int{1}}
	a.Flag(&clean)
	if clean.ManualReviewRequired {
		t.Error("expected no review for clean visit")
	}
}

func TestAssess(t *testing.T) {
	a, _ := NewAssessor(DefaultReviewThreshold)
	d := record.NewDate(2024, 1, 15)
	visits := []record.ReconciledVisit{
		{VisitID: "visit_001", VisitDate: &d, ExtractionConfidence: 0.9, RawSourcePages: []int{1},
			Medications: []record.MergedMedication{{Name: "Aspirin"}}},
		{VisitID: "visit_002", ExtractionConfidence: 0.5, RawSourcePages: []int{2}, ManualReviewRequired: true},
	}
	q := a.Assess(visits)
	if q.CompletenessScore != 0.5 {
		t.Errorf("expected completeness 0.5, got %f", q.CompletenessScore)
	}
	if math.Abs(q.ConfidenceScore-0.7) > 1e-9 {
		t.Errorf("expected confidence 0.7, got %f", q.ConfidenceScore)
	}
	if !reflect.DeepEqual(q.UnclearSections, []string{"visit_002"}) {
		t.Errorf("unexpected unclear sections %v", q.UnclearSections)
	}
	if !reflect.DeepEqual(q.MissingCriticalFields, []string{"visit_002.visit_date"}) {
		t.Errorf("unexpected missing fields %v", q.MissingCriticalFields)
	}

	empty := a.Assess(nil)
	if empty.UnclearSections == nil || empty.CompletenessScore != 0 {
		t.Errorf("unexpected empty assessment %+v", empty)
	}
}
