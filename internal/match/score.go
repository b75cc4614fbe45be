// Package match implements visual candidate retrieval and verification:
// ANN search over reference embeddings, geometric reranking, and the
// confidence fusion that decides whether a visual match is accepted.
package match

import "github.com/cardlens/scanner/internal/domain"

// ScoreConfig holds the confidence fusion policy. The weights and threshold
// are tunable per reference corpus; defaults mirror a 60/40 split between
// the distance and inlier signals.
type ScoreConfig struct {
	DistanceWeight  float64
	InlierWeight    float64
	InlierCeiling   int
	AcceptThreshold float64
}

// DefaultScoreConfig returns the stock fusion policy.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		DistanceWeight:  0.6,
		InlierWeight:    0.4,
		InlierCeiling:   60,
		AcceptThreshold: 0.85,
	}
}

// Scorer fuses ANN distance and geometric inlier count into a confidence
// value in [0,1] and applies the acceptance policy.
type Scorer struct {
	cfg ScoreConfig
}

// NewScorer creates a scorer, filling zero-valued config fields with defaults.
func NewScorer(cfg ScoreConfig) *Scorer {
	def := DefaultScoreConfig()
	if cfg.DistanceWeight <= 0 {
		cfg.DistanceWeight = def.DistanceWeight
	}
	if cfg.InlierWeight <= 0 {
		cfg.InlierWeight = def.InlierWeight
	}
	if cfg.InlierCeiling <= 0 {
		cfg.InlierCeiling = def.InlierCeiling
	}
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = def.AcceptThreshold
	}
	return &Scorer{cfg: cfg}
}

// Confidence computes the fused score for one candidate. Distance is cosine
// distance (0 = identical); inliers saturate at the configured ceiling so a
// very strong geometric match can override a mediocre embedding distance.
func (s *Scorer) Confidence(distance float64, inliers int) float64 {
	dScore := 1.0 - distance
	if dScore < 0 {
		dScore = 0
	}
	iScore := float64(inliers) / float64(s.cfg.InlierCeiling)
	if iScore > 1 {
		iScore = 1
	}
	score := s.cfg.DistanceWeight*dScore + s.cfg.InlierWeight*iScore
	if score > 1 {
		score = 1
	}
	return score
}

// Accepts reports whether a confidence clears the acceptance threshold.
func (s *Scorer) Accepts(confidence float64) bool {
	return confidence >= s.cfg.AcceptThreshold
}

// Pick scores every candidate in place and returns the best one, or nil for
// an empty slice. Ties on confidence break toward the higher raw inlier
// count.
func (s *Scorer) Pick(candidates []domain.MatchCandidate) *domain.MatchCandidate {
	if len(candidates) == 0 {
		return nil
	}

	best := -1
	for i := range candidates {
		candidates[i].Confidence = s.Confidence(candidates[i].Distance, candidates[i].Inliers)
		if best < 0 {
			best = i
			continue
		}
		if candidates[i].Confidence > candidates[best].Confidence {
			best = i
		} else if candidates[i].Confidence == candidates[best].Confidence &&
			candidates[i].Inliers > candidates[best].Inliers {
			best = i
		}
	}
	return &candidates[best]
}
