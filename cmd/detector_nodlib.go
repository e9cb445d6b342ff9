//go:build nodlib

package cmd

import (
	"errors"

	"github.com/kozaktomas/face-recognizer/internal/detector"
)

// Builds without cgo/dlib can only use the remote detector.
func newDlibDetector(string) (detector.Detector, error) {
	return nil, errors.New("built without dlib support (nodlib tag), set DETECTOR=remote")
}
