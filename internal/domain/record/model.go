// Package record defines the structured clinical entries produced by the
// field extractor for one visit, and the merged, provenance-annotated
// entries the reconciler emits in their place.
package record

import "strings"

// Kind identifies which list of a visit an entry belongs to.
type Kind string

const (
	KindMedication Kind = "medication"
	KindProblem    Kind = "problem"
	KindResult     Kind = "result"
	KindPlan       Kind = "plan"
)

// Entry is implemented by every structured and merged entry. IdentityText is
// the attribute used to decide whether two entries denote the same item and
// Page is the page the entry is attributed to (0 when unknown).
type Entry interface {
	IdentityText() string
	Page() int
}

// Medication is a single medication mention.
type Medication struct {
	Name       string `json:"name" yaml:"name"`
	Dose       string `json:"dose,omitempty" yaml:"dose,omitempty"`
	Frequency  string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Route      string `json:"route,omitempty" yaml:"route,omitempty"`
	StartDate  string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	SourcePage int    `json:"source_page" yaml:"source_page"`
}

func (m Medication) IdentityText() string { return m.Name }
func (m Medication) Page() int            { return m.SourcePage }

// Problem is a single problem list entry.
type Problem struct {
	Problem    string        `json:"problem" yaml:"problem"`
	ICD10Code  string        `json:"icd10_code,omitempty" yaml:"icd10_code,omitempty"`
	Status     ProblemStatus `json:"status,omitempty" yaml:"status,omitempty"`
	OnsetDate  string        `json:"onset_date,omitempty" yaml:"onset_date,omitempty"`
	SourcePage int           `json:"source_page" yaml:"source_page"`
}

func (p Problem) IdentityText() string { return p.Problem }
func (p Problem) Page() int            { return p.SourcePage }

// Result is a single lab or vital observation.
type Result struct {
	TestName       string       `json:"test_name" yaml:"test_name"`
	Value          Value        `json:"value" yaml:"value"`
	Unit           string       `json:"unit,omitempty" yaml:"unit,omitempty"`
	ReferenceRange string       `json:"reference_range,omitempty" yaml:"reference_range,omitempty"`
	AbnormalFlag   AbnormalFlag `json:"abnormal_flag,omitempty" yaml:"abnormal_flag,omitempty"`
	TestDate       string       `json:"test_date,omitempty" yaml:"test_date,omitempty"`
	SourcePage     int          `json:"source_page" yaml:"source_page"`
}

func (r Result) IdentityText() string { return r.TestName }
func (r Result) Page() int            { return r.SourcePage }

// PlanAction is a single plan-of-care item.
type PlanAction struct {
	Action     string       `json:"action" yaml:"action"`
	Category   PlanCategory `json:"category,omitempty" yaml:"category,omitempty"`
	SourcePage int          `json:"source_page" yaml:"source_page"`
}

func (a PlanAction) IdentityText() string { return a.Action }
func (a PlanAction) Page() int            { return a.SourcePage }

// Present reports whether an attribute value counts as supplied.
func Present(v string) bool {
	return strings.TrimSpace(v) != ""
}
