package reconcile

import (
	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/platform/textmatch"
)

// member is one entry of a match group. The first member of every group is
// its base.
type member struct {
	index int
	fuzzy bool
	score float64
}

// group partitions entries into match groups in a single ordered pass.
// Every unprocessed candidate is compared against the identity text of the
// group's original base, never against a merged representative, so the
// partition depends only on input order. Entries with a blank identity or
// no valid page are never matched and form singleton groups. A nil matcher
// restricts grouping to exact matches.
func group[E record.Entry](entries []E, m *textmatch.Matcher) [][]member {
	normalized := make([]string, len(entries))
	for i, e := range entries {
		normalized[i] = textmatch.Normalize(e.IdentityText())
	}
	degenerate := func(i int) bool {
		return normalized[i] == "" || entries[i].Page() <= 0
	}

	processed := make([]bool, len(entries))
	groups := make([][]member, 0, len(entries))
	for i := range entries {
		if processed[i] {
			continue
		}
		processed[i] = true
		g := []member{{index: i, score: 1}}
		if degenerate(i) {
			groups = append(groups, g)
			continue
		}

		base := entries[i].IdentityText()
		for j := i + 1; j < len(entries); j++ {
			if processed[j] || degenerate(j) {
				continue
			}
			if normalized[i] == normalized[j] {
				g = append(g, member{index: j, score: 1})
				processed[j] = true
				continue
			}
			if m == nil {
				continue
			}
			if ok, score := m.IsFuzzyMatch(base, entries[j].IdentityText()); ok {
				g = append(g, member{index: j, fuzzy: true, score: score})
				processed[j] = true
			}
		}
		groups = append(groups, g)
	}
	return groups
}
