package record

import "fmt"

// ProblemStatus is the clinical status of a problem.
type ProblemStatus string

const (
	ProblemActive   ProblemStatus = "active"
	ProblemResolved ProblemStatus = "resolved"
	ProblemChronic  ProblemStatus = "chronic"
	ProblemUnknown  ProblemStatus = "unknown"
)

// AbnormalFlag marks a result outside its reference range.
type AbnormalFlag string

const (
	FlagHigh     AbnormalFlag = "H"
	FlagLow      AbnormalFlag = "L"
	FlagNormal   AbnormalFlag = "N"
	FlagCritical AbnormalFlag = "critical"
)

// PlanCategory groups plan-of-care actions.
type PlanCategory string

const (
	PlanMedication PlanCategory = "medication"
	PlanLab        PlanCategory = "lab"
	PlanImaging    PlanCategory = "imaging"
	PlanReferral   PlanCategory = "referral"
	PlanFollowUp   PlanCategory = "follow_up"
	PlanProcedure  PlanCategory = "procedure"
	PlanEducation  PlanCategory = "education"
	PlanOther      PlanCategory = "other"
)

// Valid reports whether s is a known status. Empty is valid.
func (s ProblemStatus) Valid() bool {
	switch s {
	case "", ProblemActive, ProblemResolved, ProblemChronic, ProblemUnknown:
		return true
	}
	return false
}

func (f AbnormalFlag) Valid() bool {
	switch f {
	case "", FlagHigh, FlagLow, FlagNormal, FlagCritical:
		return true
	}
	return false
}

func (c PlanCategory) Valid() bool {
	switch c {
	case "", PlanMedication, PlanLab, PlanImaging, PlanReferral, PlanFollowUp,
		PlanProcedure, PlanEducation, PlanOther:
		return true
	}
	return false
}

// Warnings lists enum values in v that fall outside the known vocabularies.
// Values are reported, never rewritten.
func (v Visit) Warnings() []string {
	var out []string
	for _, p := range v.ProblemList {
		if !p.Status.Valid() {
			out = append(out, fmt.Sprintf("%s: unrecognized problem status %q on page %d", v.VisitID, p.Status, p.SourcePage))
		}
	}
	for _, r := range v.Results {
		if !r.AbnormalFlag.Valid() {
			out = append(out, fmt.Sprintf("%s: unrecognized abnormal flag %q on page %d", v.VisitID, r.AbnormalFlag, r.SourcePage))
		}
	}
	for _, a := range v.Plan {
		if !a.Category.Valid() {
			out = append(out, fmt.Sprintf("%s: unrecognized plan category %q on page %d", v.VisitID, a.Category, a.SourcePage))
		}
	}
	return out
}
