package facematch

import (
	"image"
	"math"
)

// Point is a landmark position in image pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// EyePair holds the eye centres ordered by image x coordinate.
type EyePair struct {
	Left  Point // smaller x
	Right Point
}

// Center returns the midpoint between the eyes.
func (e EyePair) Center() Point {
	return Point{X: (e.Left.X + e.Right.X) / 2, Y: (e.Left.Y + e.Right.Y) / 2}
}

// Angle returns the eye line angle in radians, positive when the right eye
// is lower than the left one in image coordinates.
func (e EyePair) Angle() float64 {
	return math.Atan2(e.Right.Y-e.Left.Y, e.Right.X-e.Left.X)
}

// NewEyePair orders two eye centres by x.
func NewEyePair(a, b Point) EyePair {
	if b.X < a.X {
		a, b = b, a
	}
	return EyePair{Left: a, Right: b}
}

func centroid(points []Point) Point {
	var c Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: c.X / n, Y: c.Y / n}
}

// EyesFrom68 derives eye centres from the 68-point landmark layout
// (points 36-41 and 42-47).
func EyesFrom68(landmarks []Point) (EyePair, bool) {
	if len(landmarks) != 68 {
		return EyePair{}, false
	}
	return NewEyePair(centroid(landmarks[36:42]), centroid(landmarks[42:48])), true
}

// EyesFromCorners derives eye centres from the dlib 5-point layout, where
// points 0-1 and 2-3 are the corners of each eye and point 4 is the nose.
func EyesFromCorners(landmarks []Point) (EyePair, bool) {
	if len(landmarks) != 5 {
		return EyePair{}, false
	}
	return NewEyePair(centroid(landmarks[0:2]), centroid(landmarks[2:4])), true
}

// EyesFromKeypoints derives eye centres from the 5 keypoint layout of
// embedding servers (eye, eye, nose, mouth corner, mouth corner).
func EyesFromKeypoints(landmarks []Point) (EyePair, bool) {
	if len(landmarks) != 5 {
		return EyePair{}, false
	}
	return NewEyePair(landmarks[0], landmarks[1]), true
}

// RectFromBBox converts an [x1, y1, x2, y2] pixel bbox to an image.Rectangle.
// Returns an empty rectangle for malformed input.
func RectFromBBox(bbox []float64) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(
		int(math.Floor(bbox[0])),
		int(math.Floor(bbox[1])),
		int(math.Ceil(bbox[2])),
		int(math.Ceil(bbox[3])),
	).Canon()
}
