package match

import (
	"log"

	"gocv.io/x/gocv"

	"github.com/cardlens/scanner/internal/domain"
)

const (
	// Lowe ratio test threshold for descriptor matches.
	matchRatio = 0.75

	// Below this many ratio-test survivors a homography fit is not
	// attempted; the raw match count stands in as the inlier count.
	minGoodMatches = 8
)

// Reranker verifies ANN candidates by ORB keypoint matching against their
// stored reference images and a RANSAC homography consensus. Embedding
// similarity alone confuses same-art different-set cards; geometric
// consistency is a near-orthogonal signal.
type Reranker struct {
	topK  int
	debug bool
}

// NewReranker creates a reranker that verifies at most topK candidates.
func NewReranker(topK int) *Reranker {
	if topK <= 0 {
		topK = 5
	}
	return &Reranker{topK: topK}
}

// SetDebug enables per-candidate logging.
func (r *Reranker) SetDebug(enabled bool) { r.debug = enabled }

// Rerank computes an inlier count for each of the top hits. Failures local
// to one candidate (unreadable reference image, no descriptors, degenerate
// fit) leave that candidate at zero inliers and never abort the batch.
func (r *Reranker) Rerank(query gocv.Mat, hits []Hit) []domain.MatchCandidate {
	n := len(hits)
	if n > r.topK {
		n = r.topK
	}
	candidates := make([]domain.MatchCandidate, 0, n)

	orb := gocv.NewORB()
	defer orb.Close()
	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer matcher.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	queryKps, queryDesc := orb.DetectAndCompute(query, mask)
	defer queryDesc.Close()

	for _, hit := range hits[:n] {
		cand := domain.MatchCandidate{
			CardID:        hit.CardID,
			Distance:      hit.Distance,
			ReferencePath: hit.ImagePath,
		}
		cand.Inliers = r.inliersAgainst(&orb, &matcher, queryKps, queryDesc, hit.ImagePath)
		if r.debug {
			log.Printf("[RERANK] %s dist=%.4f inliers=%d", hit.CardID, hit.Distance, cand.Inliers)
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

func (r *Reranker) inliersAgainst(orb *gocv.ORB, matcher *gocv.BFMatcher, queryKps []gocv.KeyPoint, queryDesc gocv.Mat, refPath string) int {
	if queryDesc.Empty() || len(queryKps) == 0 {
		return 0
	}

	ref := gocv.IMRead(refPath, gocv.IMReadColor)
	if ref.Empty() {
		log.Printf("[RERANK] cannot read reference image %s", refPath)
		return 0
	}
	defer ref.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	refKps, refDesc := orb.DetectAndCompute(ref, mask)
	defer refDesc.Close()
	if refDesc.Empty() || len(refKps) == 0 {
		return 0
	}

	matches := matcher.KnnMatch(queryDesc, refDesc, 2)

	pairs := make([]PointPair, 0, len(matches))
	for _, m := range matches {
		if len(m) < 2 {
			continue
		}
		if m[0].Distance < matchRatio*m[1].Distance {
			q := queryKps[m[0].QueryIdx]
			t := refKps[m[0].TrainIdx]
			pairs = append(pairs, PointPair{SrcX: q.X, SrcY: q.Y, DstX: t.X, DstY: t.Y})
		}
	}

	if len(pairs) < minGoodMatches {
		return len(pairs)
	}
	return CountInliers(pairs)
}
