package reconcile

import (
	"github.com/ehr/visitrecon/internal/domain/record"
)

// rules binds the shared grouping skeleton to one entry kind.
type rules[M record.Entry] struct {
	kind       record.Kind
	exactOnly  bool
	clone      func(M) M
	fold       func(base *M, other M, fuzzy bool)
	provenance func(*M) *record.Provenance
}

// run groups entries and folds every group into a fresh merged entry. The
// input slice and its entries are left untouched. Output order follows the
// first occurrence of each group's base.
func run[M record.Entry](r *Reconciler, k rules[M], entries []M) []M {
	out := make([]M, 0, len(entries))
	if len(entries) == 0 {
		return out
	}
	matcher := r.matcher
	if k.exactOnly {
		matcher = nil
	}
	for _, g := range group(entries, matcher) {
		merged := k.clone(entries[g[0].index])
		for _, m := range g[1:] {
			if m.fuzzy {
				r.logger.Debug().
					Str("kind", string(k.kind)).
					Str("base", entries[g[0].index].IdentityText()).
					Str("candidate", entries[m.index].IdentityText()).
					Float64("similarity", m.score).
					Msg("fuzzy match")
			}
			k.fold(&merged, entries[m.index], m.fuzzy)
		}
		finalize(k.provenance(&merged), merged.IdentityText())
		out = append(out, merged)
	}
	r.observer.ObserveReconcile(k.kind, len(entries), len(out))
	r.logger.Debug().
		Str("kind", string(k.kind)).
		Int("input", len(entries)).
		Int("output", len(out)).
		Msg("reconciled entries")
	return out
}

var medicationRules = rules[record.MergedMedication]{
	kind: record.KindMedication,
	clone: func(m record.MergedMedication) record.MergedMedication {
		m.ValueConflicts = cloneConflicts(m.ValueConflicts)
		m.Provenance = cloneProvenance(m.Provenance)
		return m
	},
	fold:       foldMedication,
	provenance: func(m *record.MergedMedication) *record.Provenance { return &m.Provenance },
}

var problemRules = rules[record.MergedProblem]{
	kind: record.KindProblem,
	clone: func(p record.MergedProblem) record.MergedProblem {
		p.ValueConflicts = cloneConflicts(p.ValueConflicts)
		p.Provenance = cloneProvenance(p.Provenance)
		return p
	},
	fold:       foldProblem,
	provenance: func(p *record.MergedProblem) *record.Provenance { return &p.Provenance },
}

var resultRules = rules[record.MergedResult]{
	kind: record.KindResult,
	clone: func(r record.MergedResult) record.MergedResult {
		r.ValueConflicts = append([]record.ResultConflict(nil), r.ValueConflicts...)
		r.AttributeConflicts = cloneConflicts(r.AttributeConflicts)
		r.Provenance = cloneProvenance(r.Provenance)
		return r
	},
	fold:       foldResult,
	provenance: func(r *record.MergedResult) *record.Provenance { return &r.Provenance },
}

// Plan actions differ in a single token ("2 weeks" / "3 weeks") while
// scoring well above the threshold, so they only merge on exact text.
var planRules = rules[record.MergedPlanAction]{
	kind:      record.KindPlan,
	exactOnly: true,
	clone: func(a record.MergedPlanAction) record.MergedPlanAction {
		a.ValueConflicts = cloneConflicts(a.ValueConflicts)
		a.Provenance = cloneProvenance(a.Provenance)
		return a
	},
	fold:       foldPlan,
	provenance: func(a *record.MergedPlanAction) *record.Provenance { return &a.Provenance },
}
