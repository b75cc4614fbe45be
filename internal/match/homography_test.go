package match

import (
	"math/rand"
	"testing"
)

// projectivePairs generates correspondences consistent with a single known
// transform, plus the requested number of random outliers.
func projectivePairs(rng *rand.Rand, h homography, n, outliers int) []PointPair {
	pairs := make([]PointPair, 0, n+outliers)
	for i := 0; i < n; i++ {
		x := rng.Float64() * 900
		y := rng.Float64() * 1260
		dx, dy := h.project(x, y)
		pairs = append(pairs, PointPair{SrcX: x, SrcY: y, DstX: dx, DstY: dy})
	}
	for i := 0; i < outliers; i++ {
		pairs = append(pairs, PointPair{
			SrcX: rng.Float64() * 900, SrcY: rng.Float64() * 1260,
			DstX: rng.Float64()*900 + 2000, DstY: rng.Float64() * 1260,
		})
	}
	return pairs
}

func TestCountInliers_AllConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := homography{h: [8]float64{1.02, 0.01, 12, -0.01, 0.98, -7, 0, 0}}
	pairs := projectivePairs(rng, h, 40, 0)

	got := CountInliers(pairs)
	if got != 40 {
		t.Errorf("CountInliers() = %d, want 40", got)
	}
}

func TestCountInliers_RejectsOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	h := homography{h: [8]float64{1, 0, 0, 0, 1, 0, 0, 0}}
	pairs := projectivePairs(rng, h, 30, 15)

	got := CountInliers(pairs)
	if got != 30 {
		t.Errorf("CountInliers() = %d, want 30 (outliers must not count)", got)
	}
}

func TestCountInliers_TooFewPairs(t *testing.T) {
	pairs := []PointPair{
		{SrcX: 0, SrcY: 0, DstX: 0, DstY: 0},
		{SrcX: 1, SrcY: 1, DstX: 1, DstY: 1},
	}
	if got := CountInliers(pairs); got != 2 {
		t.Errorf("CountInliers() = %d, want raw pair count 2", got)
	}
}

func TestFitHomography_Identity(t *testing.T) {
	pairs := []PointPair{
		{SrcX: 0, SrcY: 0, DstX: 0, DstY: 0},
		{SrcX: 100, SrcY: 0, DstX: 100, DstY: 0},
		{SrcX: 0, SrcY: 100, DstX: 0, DstY: 100},
		{SrcX: 100, SrcY: 100, DstX: 100, DstY: 100},
		{SrcX: 50, SrcY: 25, DstX: 50, DstY: 25},
	}

	h, err := fitHomography(pairs)
	if err != nil {
		t.Fatalf("fitHomography() error = %v", err)
	}
	for _, p := range pairs {
		px, py := h.project(p.SrcX, p.SrcY)
		if dx, dy := px-p.DstX, py-p.DstY; dx*dx+dy*dy > 1e-6 {
			t.Errorf("project(%v,%v) = (%v,%v), want (%v,%v)", p.SrcX, p.SrcY, px, py, p.DstX, p.DstY)
		}
	}
}

func TestFitHomography_TooFewPairs(t *testing.T) {
	if _, err := fitHomography(nil); err == nil {
		t.Error("fitHomography() with no pairs should fail")
	}
}
