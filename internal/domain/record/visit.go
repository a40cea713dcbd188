package record

// Visit is the structured record the field extractor returns for one visit
// chunk.
type Visit struct {
	VisitID        string       `json:"visit_id" yaml:"visit_id"`
	VisitDate      *Date        `json:"visit_date" yaml:"visit_date"`
	Medications    []Medication `json:"medications" yaml:"medications"`
	ProblemList    []Problem    `json:"problem_list" yaml:"problem_list"`
	Results        []Result     `json:"results" yaml:"results"`
	Plan           []PlanAction `json:"plan" yaml:"plan"`
	RawSourcePages []int        `json:"raw_source_pages" yaml:"raw_source_pages"`
}

// EntryCount is the number of clinical entries across all lists.
func (v Visit) EntryCount() int {
	return len(v.Medications) + len(v.ProblemList) + len(v.Results) + len(v.Plan)
}

// ReconciledVisit is a Visit whose lists hold merged entries.
type ReconciledVisit struct {
	VisitID              string             `json:"visit_id" yaml:"visit_id"`
	VisitDate            *Date              `json:"visit_date" yaml:"visit_date"`
	Medications          []MergedMedication `json:"medications" yaml:"medications"`
	ProblemList          []MergedProblem    `json:"problem_list" yaml:"problem_list"`
	Results              []MergedResult     `json:"results" yaml:"results"`
	Plan                 []MergedPlanAction `json:"plan" yaml:"plan"`
	RawSourcePages       []int              `json:"raw_source_pages" yaml:"raw_source_pages"`
	ExtractionConfidence float64            `json:"extraction_confidence" yaml:"extraction_confidence"`
	ManualReviewRequired bool               `json:"manual_review_required" yaml:"manual_review_required"`
	ReviewReasons        []string           `json:"review_reasons,omitempty" yaml:"review_reasons,omitempty"`
}

// EntryCount is the number of merged entries across all lists.
func (v ReconciledVisit) EntryCount() int {
	return len(v.Medications) + len(v.ProblemList) + len(v.Results) + len(v.Plan)
}

// HasConflicts reports whether any merged entry carries unresolved value
// conflicts.
func (v ReconciledVisit) HasConflicts() bool {
	for _, m := range v.Medications {
		if len(m.ValueConflicts) > 0 {
			return true
		}
	}
	for _, p := range v.ProblemList {
		if len(p.ValueConflicts) > 0 {
			return true
		}
	}
	for _, r := range v.Results {
		if len(r.ValueConflicts) > 0 || len(r.AttributeConflicts) > 0 {
			return true
		}
	}
	for _, a := range v.Plan {
		if len(a.ValueConflicts) > 0 {
			return true
		}
	}
	return false
}
