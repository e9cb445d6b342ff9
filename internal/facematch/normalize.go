package facematch

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel trims surrounding whitespace and converts the label to
// Unicode NFC so visually identical labels compare equal. Case is kept.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}
