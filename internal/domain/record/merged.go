package record

// MergeConfidence is attached to every merged entry built from more than
// one source page.
const MergeConfidence = 0.95

// Provenance is carried by every merged entry.
type Provenance struct {
	SourcePages                []int    `json:"source_pages" yaml:"source_pages"`
	AlternativeRepresentations []string `json:"alternative_representations,omitempty" yaml:"alternative_representations,omitempty"`
	MergeConfidence            *float64 `json:"merge_confidence,omitempty" yaml:"merge_confidence,omitempty"`
}

// FirstPage returns the lowest contributing page, or 0 when none is known.
func (p Provenance) FirstPage() int {
	if len(p.SourcePages) == 0 {
		return 0
	}
	return p.SourcePages[0]
}

// Merged reports whether more than one page contributed.
func (p Provenance) Merged() bool {
	return p.MergeConfidence != nil
}

// Conflicts maps an attribute name to every distinct value seen for it, in
// encounter order, starting with the value kept on the entry.
type Conflicts map[string][]string

// MergedMedication replaces one or more Medication entries.
type MergedMedication struct {
	Name           string    `json:"name" yaml:"name"`
	Dose           string    `json:"dose,omitempty" yaml:"dose,omitempty"`
	Frequency      string    `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Route          string    `json:"route,omitempty" yaml:"route,omitempty"`
	StartDate      string    `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate        string    `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	ValueConflicts Conflicts `json:"value_conflicts,omitempty" yaml:"value_conflicts,omitempty"`
	Provenance     `yaml:",inline"`
}

func (m MergedMedication) IdentityText() string { return m.Name }
func (m MergedMedication) Page() int            { return m.FirstPage() }

// Entry re-derives a plain entry attributed to the first source page.
func (m MergedMedication) Entry() Medication {
	return Medication{
		Name: m.Name, Dose: m.Dose, Frequency: m.Frequency, Route: m.Route,
		StartDate: m.StartDate, EndDate: m.EndDate, SourcePage: m.FirstPage(),
	}
}

// MergedProblem replaces one or more Problem entries.
type MergedProblem struct {
	Problem        string        `json:"problem" yaml:"problem"`
	ICD10Code      string        `json:"icd10_code,omitempty" yaml:"icd10_code,omitempty"`
	Status         ProblemStatus `json:"status,omitempty" yaml:"status,omitempty"`
	OnsetDate      string        `json:"onset_date,omitempty" yaml:"onset_date,omitempty"`
	ValueConflicts Conflicts     `json:"value_conflicts,omitempty" yaml:"value_conflicts,omitempty"`
	Provenance     `yaml:",inline"`
}

func (p MergedProblem) IdentityText() string { return p.Problem }
func (p MergedProblem) Page() int            { return p.FirstPage() }

func (p MergedProblem) Entry() Problem {
	return Problem{
		Problem: p.Problem, ICD10Code: p.ICD10Code, Status: p.Status,
		OnsetDate: p.OnsetDate, SourcePage: p.FirstPage(),
	}
}

// ResultConflict is an observation of the same test whose value disagreed
// with the value kept on the merged result.
type ResultConflict struct {
	Value      Value  `json:"value" yaml:"value"`
	Unit       string `json:"unit,omitempty" yaml:"unit,omitempty"`
	SourcePage int    `json:"source_page" yaml:"source_page"`
}

// MergedResult replaces one or more Result entries. Disagreeing values are
// listed per observation in ValueConflicts; disagreeing secondary
// attributes of agreeing observations land in AttributeConflicts.
type MergedResult struct {
	TestName           string           `json:"test_name" yaml:"test_name"`
	Value              Value            `json:"value" yaml:"value"`
	Unit               string           `json:"unit,omitempty" yaml:"unit,omitempty"`
	ReferenceRange     string           `json:"reference_range,omitempty" yaml:"reference_range,omitempty"`
	AbnormalFlag       AbnormalFlag     `json:"abnormal_flag,omitempty" yaml:"abnormal_flag,omitempty"`
	TestDate           string           `json:"test_date,omitempty" yaml:"test_date,omitempty"`
	ValueConflicts     []ResultConflict `json:"value_conflicts,omitempty" yaml:"value_conflicts,omitempty"`
	AttributeConflicts Conflicts        `json:"attribute_conflicts,omitempty" yaml:"attribute_conflicts,omitempty"`
	Provenance         `yaml:",inline"`
}

func (r MergedResult) IdentityText() string { return r.TestName }
func (r MergedResult) Page() int            { return r.FirstPage() }

func (r MergedResult) Entry() Result {
	return Result{
		TestName: r.TestName, Value: r.Value, Unit: r.Unit, ReferenceRange: r.ReferenceRange,
		AbnormalFlag: r.AbnormalFlag, TestDate: r.TestDate, SourcePage: r.FirstPage(),
	}
}

// MergedPlanAction replaces one or more PlanAction entries.
type MergedPlanAction struct {
	Action         string       `json:"action" yaml:"action"`
	Category       PlanCategory `json:"category,omitempty" yaml:"category,omitempty"`
	ValueConflicts Conflicts    `json:"value_conflicts,omitempty" yaml:"value_conflicts,omitempty"`
	Provenance     `yaml:",inline"`
}

func (a MergedPlanAction) IdentityText() string { return a.Action }
func (a MergedPlanAction) Page() int            { return a.FirstPage() }

func (a MergedPlanAction) Entry() PlanAction {
	return PlanAction{Action: a.Action, Category: a.Category, SourcePage: a.FirstPage()}
}
