// Package fingerprint computes perceptual image hashes used to spot the same
// photo uploaded more than once in an enrollment.
package fingerprint

import (
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"

	"golang.org/x/image/draw"
)

// Hash holds the 64-bit perceptual (DCT) and difference hashes of an image.
type Hash struct {
	P uint64
	D uint64
}

func (h Hash) String() string {
	return fmt.Sprintf("%016x:%016x", h.P, h.D)
}

// Of hashes a decoded image.
func Of(img image.Image) Hash {
	return Hash{P: perceptualHash(img), D: differenceHash(img)}
}

// HammingDistance counts the differing bits of two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Distance is the larger of the pHash and dHash distances, so both hashes
// must agree for two images to be close.
func (h Hash) Distance(other Hash) int {
	return max(HammingDistance(h.P, other.P), HammingDistance(h.D, other.D))
}

// Similar reports whether two hashes are within threshold bits.
func (h Hash) Similar(other Hash, threshold int) bool {
	return h.Distance(other) <= threshold
}

// NearDuplicates returns index pairs (i < j) of hashes within threshold.
func NearDuplicates(hashes []Hash, threshold int) [][2]int {
	var pairs [][2]int
	for i := range hashes {
		for j := i + 1; j < len(hashes); j++ {
			if hashes[i].Similar(hashes[j], threshold) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

// perceptualHash thresholds the low frequency DCT coefficients of a 32x32
// grayscale thumbnail against their median. The DC term is skipped.
func perceptualHash(img image.Image) uint64 {
	dct := computeDCT(grayscale(img, 32, 32))

	coeffs := make([]float64, 0, 64)
	for u := range 9 {
		for v := range 8 {
			if (u == 0 && v == 0) || len(coeffs) == 64 {
				continue
			}
			coeffs = append(coeffs, dct[u][v])
		}
	}

	median := computeMedian(coeffs)
	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// differenceHash compares horizontally adjacent pixels of a 9x8 thumbnail.
func differenceHash(img image.Image) uint64 {
	gray := grayscale(img, 9, 8)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// grayscale scales img to width x height and returns BT.601 luma as [x][y].
func grayscale(img image.Image, width, height int) [][]float64 {
	small := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			c := small.RGBAAt(x, y)
			gray[x][y] = 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		}
	}
	return gray
}

// computeDCT is a naive 2D DCT-II of a square matrix.
func computeDCT(gray [][]float64) [][]float64 {
	n := len(gray)
	cos := make([][]float64, n)
	for i := range cos {
		cos[i] = make([]float64, n)
		for j := range n {
			cos[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(n)))
		}
	}

	dct := make([][]float64, n)
	for u := range n {
		dct[u] = make([]float64, n)
		for v := range n {
			var sum float64
			for x := range n {
				for y := range n {
					sum += gray[x][y] * cos[u][x] * cos[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

func computeMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
