package facematch

import (
	"math"
	"testing"
)

func vec(values ...float32) []float32 {
	return values
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", vec(1, 2, 3), vec(1, 2, 3), 0},
		{"3-4-5", vec(0, 0), vec(3, 4), 5},
		{"unit apart", vec(0, 0, 0), vec(0, 0, 1), 1},
		{"length mismatch", vec(1, 2), vec(1, 2, 3), math.Inf(1)},
		{"empty", nil, nil, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.IsInf(tt.expected, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("expected +Inf, got %v", got)
				}
				return
			}
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("EuclideanDistance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEuclideanDistance_Symmetric(t *testing.T) {
	pairs := [][2][]float32{
		{vec(0.1, -0.4, 0.9), vec(0.3, 0.2, -0.5)},
		{vec(1, 1, 1, 1), vec(-1, 0, 2, 5)},
		{vec(0.001), vec(-0.002)},
	}

	for _, p := range pairs {
		if EuclideanDistance(p[0], p[1]) != EuclideanDistance(p[1], p[0]) {
			t.Errorf("distance not symmetric for %v and %v", p[0], p[1])
		}
	}
}

func TestMeanDistance(t *testing.T) {
	query := vec(0, 0)

	got := MeanDistance(query, [][]float32{vec(3, 4), vec(0, 1)})
	if math.Abs(got-3) > 1e-6 {
		t.Errorf("expected mean 3, got %v", got)
	}

	// mismatched descriptors are skipped
	got = MeanDistance(query, [][]float32{vec(0, 2), vec(1, 2, 3)})
	if math.Abs(got-2) > 1e-6 {
		t.Errorf("expected mean 2 with skipped descriptor, got %v", got)
	}

	if !math.IsInf(MeanDistance(query, nil), 1) {
		t.Error("expected +Inf for no descriptors")
	}
}

func TestSimilarity(t *testing.T) {
	if Similarity(0) != 1 {
		t.Errorf("Similarity(0) = %v, want 1", Similarity(0))
	}
	if Similarity(1) != 0.5 {
		t.Errorf("Similarity(1) = %v, want 0.5", Similarity(1))
	}
	if Similarity(math.Inf(1)) != 0 {
		t.Errorf("Similarity(+Inf) = %v, want 0", Similarity(math.Inf(1)))
	}

	prev := Similarity(0)
	for _, d := range []float64{0.1, 0.3, 0.6, 1.2, 5} {
		s := Similarity(d)
		if s <= 0 || s > 1 {
			t.Errorf("Similarity(%v) = %v out of (0,1]", d, s)
		}
		if s >= prev {
			t.Errorf("Similarity not decreasing at %v", d)
		}
		prev = s
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(0.123456, 4); got != 0.1235 {
		t.Errorf("RoundTo = %v, want 0.1235", got)
	}
	if !math.IsInf(RoundTo(math.Inf(1), 2), 1) {
		t.Error("expected +Inf to pass through")
	}
}

func TestMatcher_FindBestMatch(t *testing.T) {
	labeled := []LabeledDescriptors{
		{Label: "alice", Descriptors: [][]float32{vec(0, 0), vec(0, 0.2)}},
		{Label: "bob", Descriptors: [][]float32{vec(1, 1), vec(1, 1.2)}},
	}
	m := NewMatcher(labeled, 0.6)

	tests := []struct {
		name      string
		query     []float32
		wantLabel string
		wantDist  float64
	}{
		{"close to alice", vec(0, 0.1), "alice", 0.1},
		{"close to bob", vec(1, 1.1), "bob", 0.1},
		{"far from everyone", vec(5, 5), UnknownLabel, -1},
		{"wrong dimension", vec(0, 0, 0), UnknownLabel, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.FindBestMatch(tt.query)
			if got.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", got.Label, tt.wantLabel)
			}
			if tt.wantDist >= 0 && math.Abs(got.Distance-tt.wantDist) > 1e-6 {
				t.Errorf("distance = %v, want %v", got.Distance, tt.wantDist)
			}
		})
	}
}

func TestMatcher_UsesMeanNotMinimum(t *testing.T) {
	// alice has one very close descriptor and one far away: mean 0.55
	// bob is uniformly at 0.5
	labeled := []LabeledDescriptors{
		{Label: "alice", Descriptors: [][]float32{vec(0, 0), vec(0, 1.1)}},
		{Label: "bob", Descriptors: [][]float32{vec(0.5, 0), vec(-0.5, 0)}},
	}
	got := NewMatcher(labeled, 0.6).FindBestMatch(vec(0, 0))
	if got.Label != "bob" {
		t.Errorf("expected bob by mean distance, got %q (%v)", got.Label, got.Distance)
	}
}

func TestMatcher_ThresholdIsStrict(t *testing.T) {
	labeled := []LabeledDescriptors{{Label: "alice", Descriptors: [][]float32{vec(0, 0.5)}}}

	got := NewMatcher(labeled, 0.5).FindBestMatch(vec(0, 0))
	if !got.IsUnknown() {
		t.Errorf("expected unknown at distance == threshold, got %q", got.Label)
	}
	if math.Abs(got.Distance-0.5) > 1e-6 {
		t.Errorf("expected distance kept for unknown match, got %v", got.Distance)
	}
}

func TestMatcher_Empty(t *testing.T) {
	m := NewMatcher(nil, 0)
	if m.Threshold() != 0.6 {
		t.Errorf("expected default threshold 0.6, got %v", m.Threshold())
	}

	got := m.FindBestMatch(vec(1, 2))
	if !got.IsUnknown() || !math.IsInf(got.Distance, 1) {
		t.Errorf("expected unknown at +Inf, got %+v", got)
	}
}

func TestMatcher_MatchAll(t *testing.T) {
	m := NewMatcher([]LabeledDescriptors{{Label: "alice", Descriptors: [][]float32{vec(0, 0)}}}, 0.6)

	got := m.MatchAll([][]float32{vec(0, 0.1), vec(9, 9)})
	if len(got) != 2 || got[0].Label != "alice" || !got[1].IsUnknown() {
		t.Errorf("unexpected matches: %+v", got)
	}
}
