// Package facematch provides descriptor distance and nearest-label matching
// shared between the recognition service, the CLI and the web handlers.
package facematch

import "github.com/kozaktomas/face-recognizer/internal/constants"

// UnknownLabel is the label of a face with no enrolled label under the threshold.
const UnknownLabel = constants.UnknownLabel

// LabeledDescriptors groups all enrolled descriptors of one label.
type LabeledDescriptors struct {
	Label       string
	Descriptors [][]float32
}

// Match is the best label for a query descriptor.
type Match struct {
	Label    string
	Distance float64 // mean Euclidean distance to the label's descriptors
}

// IsUnknown reports whether no label was close enough.
func (m Match) IsUnknown() bool {
	return m.Label == UnknownLabel
}
