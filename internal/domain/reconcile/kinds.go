package reconcile

import (
	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/platform/textmatch"
)

// -- Medications --

func liftMedication(m record.Medication) record.MergedMedication {
	return record.MergedMedication{
		Name: m.Name, Dose: m.Dose, Frequency: m.Frequency, Route: m.Route,
		StartDate: m.StartDate, EndDate: m.EndDate,
		Provenance: provenanceOf(m.SourcePage),
	}
}

func foldMedication(base *record.MergedMedication, other record.MergedMedication, fuzzy bool) {
	if fuzzy {
		addAlternative(&base.Provenance, other.Name)
	}
	absorb(&base.Provenance, other.Provenance)

	c := &base.ValueConflicts
	mergeAttr(c, "dose", &base.Dose, other.Dose)
	mergeAttr(c, "frequency", &base.Frequency, other.Frequency)
	mergeAttr(c, "route", &base.Route, other.Route)
	mergeAttr(c, "start_date", &base.StartDate, other.StartDate)
	mergeAttr(c, "end_date", &base.EndDate, other.EndDate)
	unionConflicts(c, func(field string) string {
		switch field {
		case "dose":
			return base.Dose
		case "frequency":
			return base.Frequency
		case "route":
			return base.Route
		case "start_date":
			return base.StartDate
		case "end_date":
			return base.EndDate
		}
		return ""
	}, other.ValueConflicts)
}

// -- Problems --

func liftProblem(p record.Problem) record.MergedProblem {
	return record.MergedProblem{
		Problem: p.Problem, ICD10Code: p.ICD10Code, Status: p.Status, OnsetDate: p.OnsetDate,
		Provenance: provenanceOf(p.SourcePage),
	}
}

// foldProblem keeps the longer of two near-matching descriptions as the
// canonical text and lists the shorter one as an alternative. The new
// canonical text was never compared with the rest of the input, so a later
// pass over merged problems can join groups this pass kept apart.
func foldProblem(base *record.MergedProblem, other record.MergedProblem, fuzzy bool) {
	if fuzzy {
		if textLen(other.Problem) > textLen(base.Problem) {
			addAlternative(&base.Provenance, base.Problem)
			base.Problem = other.Problem
		} else {
			addAlternative(&base.Provenance, other.Problem)
		}
	}
	absorb(&base.Provenance, other.Provenance)

	c := &base.ValueConflicts
	mergeAttr(c, "icd10_code", &base.ICD10Code, other.ICD10Code)
	mergeAttr(c, "status", &base.Status, other.Status)
	mergeAttr(c, "onset_date", &base.OnsetDate, other.OnsetDate)
	unionConflicts(c, func(field string) string {
		switch field {
		case "icd10_code":
			return base.ICD10Code
		case "status":
			return string(base.Status)
		case "onset_date":
			return base.OnsetDate
		}
		return ""
	}, other.ValueConflicts)
}

// -- Results --

func liftResult(r record.Result) record.MergedResult {
	return record.MergedResult{
		TestName: r.TestName, Value: r.Value, Unit: r.Unit, ReferenceRange: r.ReferenceRange,
		AbnormalFlag: r.AbnormalFlag, TestDate: r.TestDate,
		Provenance: provenanceOf(r.SourcePage),
	}
}

// foldResult merges an observation of the same test. Only values that
// match exactly after normalization are merged; a blank value on either
// side counts as a disagreement. When the values disagree the base value
// stays and the other observation is listed with its unit and page; its
// secondary attributes describe that observation and are not merged.
func foldResult(base *record.MergedResult, other record.MergedResult, fuzzy bool) {
	if fuzzy {
		addAlternative(&base.Provenance, other.TestName)
	}
	absorb(&base.Provenance, other.Provenance)

	if textmatch.IsExactMatch(string(base.Value), string(other.Value)) {
		mergeResultAttrs(base, other)
	} else {
		addResultConflict(base, record.ResultConflict{
			Value:      other.Value,
			Unit:       other.Unit,
			SourcePage: other.FirstPage(),
		})
	}
	for _, rc := range other.ValueConflicts {
		if textmatch.IsExactMatch(string(rc.Value), string(base.Value)) {
			continue
		}
		addResultConflict(base, rc)
	}
}

func mergeResultAttrs(base *record.MergedResult, other record.MergedResult) {
	c := &base.AttributeConflicts
	mergeAttr(c, "unit", &base.Unit, other.Unit)
	mergeAttr(c, "reference_range", &base.ReferenceRange, other.ReferenceRange)
	mergeAttr(c, "abnormal_flag", &base.AbnormalFlag, other.AbnormalFlag)
	mergeAttr(c, "test_date", &base.TestDate, other.TestDate)
	unionConflicts(c, func(field string) string {
		switch field {
		case "unit":
			return base.Unit
		case "reference_range":
			return base.ReferenceRange
		case "abnormal_flag":
			return string(base.AbnormalFlag)
		case "test_date":
			return base.TestDate
		}
		return ""
	}, other.AttributeConflicts)
}

func addResultConflict(base *record.MergedResult, rc record.ResultConflict) {
	for _, existing := range base.ValueConflicts {
		if existing == rc {
			return
		}
	}
	base.ValueConflicts = append(base.ValueConflicts, rc)
}

// -- Plan --

func liftPlan(a record.PlanAction) record.MergedPlanAction {
	return record.MergedPlanAction{
		Action: a.Action, Category: a.Category,
		Provenance: provenanceOf(a.SourcePage),
	}
}

func foldPlan(base *record.MergedPlanAction, other record.MergedPlanAction, fuzzy bool) {
	if fuzzy {
		addAlternative(&base.Provenance, other.Action)
	}
	absorb(&base.Provenance, other.Provenance)

	c := &base.ValueConflicts
	mergeAttr(c, "category", &base.Category, other.Category)
	unionConflicts(c, func(string) string { return string(base.Category) }, other.ValueConflicts)
}
