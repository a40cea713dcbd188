// Package reconcile deduplicates the structured entries of a visit. Entries
// of one kind are grouped by exact, then fuzzy, identity match against each
// group's base entry and folded into merged entries that keep every source
// page, every absorbed identity variant and every conflicting attribute
// value.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/platform/textmatch"
)

// Observer receives the size of every reconciled list. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveReconcile(kind record.Kind, input, output int)
}

type nopObserver struct{}

func (nopObserver) ObserveReconcile(record.Kind, int, int) {}

// Reconciler merges duplicate entries at a fixed fuzzy threshold. It holds
// no mutable state and may be shared between goroutines.
type Reconciler struct {
	matcher  *textmatch.Matcher
	logger   zerolog.Logger
	observer Observer
	workers  int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger used for diagnostic events.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithObserver reports list sizes to o.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithWorkers bounds the number of visits reconciled concurrently.
func WithWorkers(n int) Option {
	return func(r *Reconciler) { r.workers = n }
}

// New returns a Reconciler using threshold for fuzzy identity matches.
// A threshold outside [0,1] is rejected.
func New(threshold float64, opts ...Option) (*Reconciler, error) {
	m, err := textmatch.NewMatcher(threshold)
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}
	r := &Reconciler{
		matcher:  m,
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		workers:  4,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	return r, nil
}

// Threshold returns the fuzzy match threshold.
func (r *Reconciler) Threshold() float64 {
	return r.matcher.Threshold
}

// Medications merges duplicate medications.
func (r *Reconciler) Medications(in []record.Medication) []record.MergedMedication {
	lifted := make([]record.MergedMedication, len(in))
	for i, m := range in {
		lifted[i] = liftMedication(m)
	}
	return run(r, medicationRules, lifted)
}

// Problems merges duplicate problems. The longer of two near-matching
// descriptions becomes canonical.
func (r *Reconciler) Problems(in []record.Problem) []record.MergedProblem {
	lifted := make([]record.MergedProblem, len(in))
	for i, p := range in {
		lifted[i] = liftProblem(p)
	}
	return run(r, problemRules, lifted)
}

// Results merges observations of the same test, listing observations whose
// value disagrees.
func (r *Reconciler) Results(in []record.Result) []record.MergedResult {
	lifted := make([]record.MergedResult, len(in))
	for i, res := range in {
		lifted[i] = liftResult(res)
	}
	return run(r, resultRules, lifted)
}

// Plan merges plan actions with identical text.
func (r *Reconciler) Plan(in []record.PlanAction) []record.MergedPlanAction {
	lifted := make([]record.MergedPlanAction, len(in))
	for i, a := range in {
		lifted[i] = liftPlan(a)
	}
	return run(r, planRules, lifted)
}

// Visit reconciles every list of v.
func (r *Reconciler) Visit(v record.Visit) record.ReconciledVisit {
	return record.ReconciledVisit{
		VisitID:        v.VisitID,
		VisitDate:      v.VisitDate,
		Medications:    r.Medications(v.Medications),
		ProblemList:    r.Problems(v.ProblemList),
		Results:        r.Results(v.Results),
		Plan:           r.Plan(v.Plan),
		RawSourcePages: append([]int{}, v.RawSourcePages...),
	}
}

// Revisit runs the merge once more over an already reconciled visit,
// superseding any entries that still match. Review fields are carried over.
func (r *Reconciler) Revisit(v record.ReconciledVisit) record.ReconciledVisit {
	out := v
	out.Medications = run(r, medicationRules, v.Medications)
	out.ProblemList = run(r, problemRules, v.ProblemList)
	out.Results = run(r, resultRules, v.Results)
	out.Plan = run(r, planRules, v.Plan)
	out.RawSourcePages = append([]int{}, v.RawSourcePages...)
	out.ReviewReasons = append([]string(nil), v.ReviewReasons...)
	return out
}

// Visits reconciles each visit independently and concurrently. The output
// is in input order.
func (r *Reconciler) Visits(ctx context.Context, visits []record.Visit) ([]record.ReconciledVisit, error) {
	return fanOut(ctx, r, visits, r.Visit)
}

// Document runs the document-level pass: each visit's lists are merged
// again on their own. Entries are never merged across visits.
func (r *Reconciler) Document(ctx context.Context, visits []record.ReconciledVisit) ([]record.ReconciledVisit, error) {
	start := time.Now()
	out, err := fanOut(ctx, r, visits, r.Revisit)
	if err != nil {
		return nil, err
	}
	r.logger.Info().
		Int("visits", len(out)).
		Dur("duration", time.Since(start)).
		Msg("document pass complete")
	return out, nil
}

func fanOut[V any](ctx context.Context, r *Reconciler, in []V, fn func(V) record.ReconciledVisit) ([]record.ReconciledVisit, error) {
	out := make([]record.ReconciledVisit, len(in))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range in {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = fn(in[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile visits: %w", err)
	}
	return out, nil
}
