package vision

import (
	"errors"
	"fmt"
	"log"

	"gocv.io/x/gocv"

	"github.com/cardlens/scanner/internal/domain"
	"github.com/cardlens/scanner/internal/match"
)

const defaultSearchTopK = 10

// Matcher runs the visual half of identification for one image: embed,
// ANN search, geometric rerank. It does not score or accept candidates;
// that policy belongs to the caller.
type Matcher struct {
	embedder *Embedder
	index    *match.Index
	reranker *match.Reranker
	topK     int
}

// NewMatcher wires an embedder, an ANN index and a reranker together.
func NewMatcher(embedder *Embedder, index *match.Index, reranker *match.Reranker, topK int) *Matcher {
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	return &Matcher{embedder: embedder, index: index, reranker: reranker, topK: topK}
}

// Match returns geometrically verified candidates for the image at path,
// nearest neighbors first. An empty index yields an empty slice, not an
// error; an unreadable image or encoder failure is an error.
func (m *Matcher) Match(imagePath string) ([]domain.MatchCandidate, error) {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("%w: cannot read image %s", domain.ErrEmbedding, imagePath)
	}
	defer img.Close()

	vec, err := m.embedder.Embed(img)
	if err != nil {
		return nil, err
	}

	hits, err := m.index.Search(vec, m.topK)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			log.Printf("[VISUAL] index unavailable: %v", err)
		}
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	return m.reranker.Rerank(img, hits), nil
}
