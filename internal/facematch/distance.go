package facematch

import "math"

// EuclideanDistance computes the L2 distance between two descriptors.
// Returns +Inf for mismatched lengths or empty input.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// MeanDistance is the average distance from query to each descriptor.
// Descriptors whose length differs from the query are skipped; if none
// remain the result is +Inf.
func MeanDistance(query []float32, descriptors [][]float32) float64 {
	var sum float64
	var n int
	for _, d := range descriptors {
		dist := EuclideanDistance(query, d)
		if math.IsInf(dist, 1) {
			continue
		}
		sum += dist
		n++
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}

// Similarity maps a distance to (0, 1] as 1/(1+d). Display only.
func Similarity(distance float64) float64 {
	if distance < 0 || math.IsNaN(distance) {
		distance = 0
	}
	if math.IsInf(distance, 1) {
		return 0
	}
	return 1 / (1 + distance)
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
