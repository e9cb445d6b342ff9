package facematch

import (
	"math"

	"github.com/kozaktomas/face-recognizer/internal/constants"
)

// Matcher finds the nearest enrolled label for a query descriptor.
// A label's distance is the mean of the distances to all of its descriptors.
type Matcher struct {
	labeled   []LabeledDescriptors
	threshold float64
}

// NewMatcher builds a matcher; a non-positive threshold falls back to 0.6.
func NewMatcher(labeled []LabeledDescriptors, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = constants.DefaultDistanceThreshold
	}
	return &Matcher{labeled: labeled, threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Labels returns the number of labels known to the matcher.
func (m *Matcher) Labels() int {
	return len(m.labeled)
}

// FindBestMatch returns the label with the smallest mean distance if it is
// strictly below the threshold, otherwise UnknownLabel with that distance.
// With no labels the result is UnknownLabel at +Inf.
func (m *Matcher) FindBestMatch(query []float32) Match {
	best := Match{Label: UnknownLabel, Distance: math.Inf(1)}
	for _, ld := range m.labeled {
		d := MeanDistance(query, ld.Descriptors)
		if d < best.Distance {
			best = Match{Label: ld.Label, Distance: d}
		}
	}

	if best.Distance >= m.threshold {
		best.Label = UnknownLabel
	}
	return best
}

// MatchAll runs FindBestMatch for every query, preserving order.
func (m *Matcher) MatchAll(queries [][]float32) []Match {
	matches := make([]Match, len(queries))
	for i, q := range queries {
		matches[i] = m.FindBestMatch(q)
	}
	return matches
}
