package match

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// PointPair is one putative keypoint correspondence between the query image
// and a candidate reference image.
type PointPair struct {
	SrcX, SrcY float64
	DstX, DstY float64
}

const (
	ransacIterations = 1000
	ransacThreshold  = 5.0 // reprojection error in pixels
	minHomographyPairs = 4
)

// homography is a 3x3 projective transform with h33 fixed to 1.
type homography struct {
	h [8]float64
}

func (h homography) project(x, y float64) (float64, float64) {
	w := h.h[6]*x + h.h[7]*y + 1.0
	if w == 0 {
		w = 1e-12
	}
	px := (h.h[0]*x + h.h[1]*y + h.h[2]) / w
	py := (h.h[3]*x + h.h[4]*y + h.h[5]) / w
	return px, py
}

// fitHomography solves the direct linear system for 4+ correspondences with
// h33 pinned to 1, via least squares. Degenerate configurations (collinear
// samples) surface as a solve error and the RANSAC loop skips them.
func fitHomography(pairs []PointPair) (homography, error) {
	if len(pairs) < minHomographyPairs {
		return homography{}, fmt.Errorf("need at least %d pairs, got %d", minHomographyPairs, len(pairs))
	}

	n := len(pairs)
	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i, p := range pairs {
		a.SetRow(2*i, []float64{p.SrcX, p.SrcY, 1, 0, 0, 0, -p.SrcX * p.DstX, -p.SrcY * p.DstX})
		b.SetVec(2*i, p.DstX)
		a.SetRow(2*i+1, []float64{0, 0, 0, p.SrcX, p.SrcY, 1, -p.SrcX * p.DstY, -p.SrcY * p.DstY})
		b.SetVec(2*i+1, p.DstY)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return homography{}, fmt.Errorf("solve homography: %w", err)
	}

	var h homography
	for i := 0; i < 8; i++ {
		h.h[i] = x.AtVec(i)
	}
	return h, nil
}

// CountInliers estimates a homography from the correspondences via RANSAC
// and returns the size of the largest consensus set. Fewer pairs than a fit
// requires yields the raw pair count, matching the policy that a candidate
// with too few matches is weak, not erroneous.
func CountInliers(pairs []PointPair) int {
	return countInliersSeeded(pairs, rand.New(rand.NewSource(hnswSeed)))
}

func countInliersSeeded(pairs []PointPair, rng *rand.Rand) int {
	if len(pairs) < minHomographyPairs {
		return len(pairs)
	}

	n := len(pairs)
	best := 0
	sample := make([]PointPair, minHomographyPairs)
	for iter := 0; iter < ransacIterations; iter++ {
		idx := rng.Perm(n)[:minHomographyPairs]
		for i, j := range idx {
			sample[i] = pairs[j]
		}

		h, err := fitHomography(sample)
		if err != nil {
			continue
		}

		inliers := 0
		for _, p := range pairs {
			px, py := h.project(p.SrcX, p.SrcY)
			dx, dy := px-p.DstX, py-p.DstY
			if dx*dx+dy*dy < ransacThreshold*ransacThreshold {
				inliers++
			}
		}
		if inliers > best {
			best = inliers
		}
		// Every pair already consistent; no better fit exists.
		if best == n {
			break
		}
	}
	return best
}
