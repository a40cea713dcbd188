package reconcile

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/platform/textmatch"
)

// mergeAttr folds other into *base: an absent base takes a present other,
// and two differing present values keep base and are recorded under field.
func mergeAttr[S ~string](conflicts *record.Conflicts, field string, base *S, other S) {
	if !record.Present(string(other)) {
		return
	}
	if !record.Present(string(*base)) {
		*base = other
		return
	}
	if sameValue(string(*base), string(other)) {
		return
	}
	addConflict(conflicts, field, string(*base), string(other))
}

// unionConflicts carries over conflicts already recorded on an absorbed
// merged entry.
func unionConflicts(conflicts *record.Conflicts, kept func(field string) string, other record.Conflicts) {
	for _, field := range sortedFields(other) {
		base := kept(field)
		for _, v := range other[field] {
			if sameValue(base, v) {
				continue
			}
			addConflict(conflicts, field, base, v)
		}
	}
}

func addConflict(conflicts *record.Conflicts, field, kept, other string) {
	if *conflicts == nil {
		*conflicts = record.Conflicts{}
	}
	values := (*conflicts)[field]
	if len(values) == 0 {
		values = []string{kept}
	}
	for _, v := range values {
		if sameValue(v, other) {
			(*conflicts)[field] = values
			return
		}
	}
	(*conflicts)[field] = append(values, other)
}

func sameValue(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func sortedFields(c record.Conflicts) []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// addAlternative appends text unless an equivalent variant is already listed.
func addAlternative(p *record.Provenance, text string) {
	key := textmatch.Normalize(text)
	if key == "" {
		return
	}
	for _, alt := range p.AlternativeRepresentations {
		if textmatch.Normalize(alt) == key {
			return
		}
	}
	p.AlternativeRepresentations = append(p.AlternativeRepresentations, text)
}

// absorb adds the pages and alternatives of other to p.
func absorb(p *record.Provenance, other record.Provenance) {
	p.SourcePages = append(p.SourcePages, other.SourcePages...)
	for _, alt := range other.AlternativeRepresentations {
		addAlternative(p, alt)
	}
}

// finalize sorts and dedupes the page set, drops alternatives equivalent to
// the canonical text and sets the merge confidence.
func finalize(p *record.Provenance, canonical string) {
	pages := append([]int(nil), p.SourcePages...)
	sort.Ints(pages)
	dedup := make([]int, 0, len(pages))
	for i, pg := range pages {
		if i > 0 && pg == pages[i-1] {
			continue
		}
		dedup = append(dedup, pg)
	}
	p.SourcePages = dedup

	key := textmatch.Normalize(canonical)
	var alts []string
	for _, alt := range p.AlternativeRepresentations {
		if textmatch.Normalize(alt) != key {
			alts = append(alts, alt)
		}
	}
	p.AlternativeRepresentations = alts

	p.MergeConfidence = nil
	if len(p.SourcePages) > 1 {
		c := record.MergeConfidence
		p.MergeConfidence = &c
	}
}

// provenanceOf starts the provenance of a single plain entry.
func provenanceOf(page int) record.Provenance {
	pages := []int{}
	if page > 0 {
		pages = append(pages, page)
	}
	return record.Provenance{SourcePages: pages}
}

func cloneProvenance(p record.Provenance) record.Provenance {
	out := record.Provenance{
		SourcePages:                append([]int{}, p.SourcePages...),
		AlternativeRepresentations: append([]string(nil), p.AlternativeRepresentations...),
	}
	if p.MergeConfidence != nil {
		c := *p.MergeConfidence
		out.MergeConfidence = &c
	}
	return out
}

func cloneConflicts(c record.Conflicts) record.Conflicts {
	if c == nil {
		return nil
	}
	out := make(record.Conflicts, len(c))
	for k, v := range c {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
