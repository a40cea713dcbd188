package textmatch

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultThreshold is the similarity ratio at or above which two identity
// texts are treated as the same item.
const DefaultThreshold = 0.85

// ErrInvalidThreshold is returned when a fuzzy threshold is outside [0,1].
var ErrInvalidThreshold = errors.New("textmatch: threshold must be within [0, 1]")

// Similarity returns a symmetric ratio in [0,1] describing how closely the
// normalized forms of a and b align. The score is the Ratcliff/Obershelp
// ratio 2*M/T computed over characters, or over whitespace separated tokens
// when that aligns better, so a shorter name fully contained word-for-word
// in a longer one ("Type 2 Diabetes" in "Type 2 Diabetes Mellitus") still
// scores close. Either side empty yields 0.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}
	// Block matching breaks ties by position, so argument order is fixed to
	// keep the score symmetric.
	if nb < na {
		na, nb = nb, na
	}

	chars := ratio([]rune(na), []rune(nb))
	tokens := ratio(strings.Split(na, " "), strings.Split(nb, " "))
	return math.Max(chars, tokens)
}

// Matcher applies a fixed fuzzy threshold.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a Matcher for threshold, rejecting values outside [0,1].
func NewMatcher(threshold float64) (*Matcher, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return &Matcher{Threshold: threshold}, nil
}

// IsFuzzyMatch reports whether Similarity(a, b) reaches the threshold and
// returns the score.
func (m *Matcher) IsFuzzyMatch(a, b string) (bool, float64) {
	score := Similarity(a, b)
	return score >= m.Threshold, score
}

// ratio is 2*M/T where M is the number of elements in the matching blocks
// of a and b and T the combined length.
func ratio[T comparable](a, b []T) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0.0
	}
	return 2.0 * float64(matchedElements(a, b)) / float64(total)
}

// matchedElements finds the longest common contiguous block, then recurses
// on the unmatched regions to its left and right.
func matchedElements[T comparable](a, b []T) int {
	type span struct{ alo, ahi, blo, bhi int }

	index := make(map[T][]int, len(b))
	for j, v := range b {
		index[v] = append(index[v], j)
	}

	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestBlock(a, index, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestBlock returns the longest block a[i:i+k] == b[j:j+k] inside the
// given bounds, preferring the earliest start in a, then in b.
func longestBlock[T comparable](a []T, index map[T][]int, alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestk := alo, blo, 0
	runs := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range index[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := runs[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		runs = next
	}
	return besti, bestj, bestk
}
