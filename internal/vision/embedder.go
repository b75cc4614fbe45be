// Package vision maps warped card images to fixed-length feature vectors
// using an ONNX image encoder run through the OpenCV DNN module.
package vision

import (
	"fmt"
	"image"
	"log"
	"math"

	"gocv.io/x/gocv"

	"github.com/cardlens/scanner/internal/domain"
)

const (
	// EmbeddingDim is the output dimension of the image encoder.
	EmbeddingDim = 512

	inputSize = 224
)

// Embedder produces unit-normalized embeddings for warped card images.
// Deterministic for a given image and model weights. Callers must not
// re-normalize the output.
type Embedder struct {
	net gocv.Net
}

// NewEmbedder loads the ONNX encoder from modelPath and pins inference to
// the CPU backend.
func NewEmbedder(modelPath string) (*Embedder, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load embedding model %s: model is empty or unreadable", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set DNN backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set DNN target: %w", err)
	}

	log.Printf("[EMBED] Loaded encoder %s (dim=%d, input=%dx%d)", modelPath, EmbeddingDim, inputSize, inputSize)
	return &Embedder{net: net}, nil
}

// Close releases the underlying network.
func (e *Embedder) Close() error {
	return e.net.Close()
}

// Embed maps a warped BGR card image to a 512-dimensional unit vector.
// Malformed input (empty or non 3-channel) fails with ErrEmbedding.
func (e *Embedder) Embed(img gocv.Mat) ([]float32, error) {
	if img.Empty() || img.Cols() == 0 || img.Rows() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", domain.ErrEmbedding)
	}
	if img.Channels() != 3 {
		return nil, fmt.Errorf("%w: expected 3 channels, got %d", domain.ErrEmbedding, img.Channels())
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	total := out.Total()
	if total != EmbeddingDim {
		return nil, fmt.Errorf("%w: encoder produced %d values, want %d", domain.ErrEmbedding, total, EmbeddingDim)
	}

	vec := make([]float32, EmbeddingDim)
	for j := 0; j < EmbeddingDim; j++ {
		vec[j] = out.GetFloatAt(0, j)
	}

	if err := l2Normalize(vec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return vec, nil
}

// EmbedFile reads an image from disk and embeds it.
func (e *Embedder) EmbedFile(path string) ([]float32, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("%w: cannot read image %s", domain.ErrEmbedding, path)
	}
	defer img.Close()
	return e.Embed(img)
}

// l2Normalize scales vec to unit length in place. A zero vector cannot be
// normalized and is rejected.
func l2Normalize(vec []float32) error {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return fmt.Errorf("zero-norm embedding")
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return nil
}
