//go:build !nodlib

package cmd

import (
	"github.com/kozaktomas/face-recognizer/internal/detector"
	"github.com/kozaktomas/face-recognizer/internal/detector/dlib"
)

func newDlibDetector(modelsDir string) (detector.Detector, error) {
	d, err := dlib.New(modelsDir)
	if err != nil {
		return nil, err
	}
	return d, nil
}
