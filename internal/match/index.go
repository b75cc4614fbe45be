package match

import (
	"container/heap"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/cardlens/scanner/internal/domain"
)

// Index artifact filenames inside the index directory.
const (
	GraphFileName = "hnsw.bin"
	MetaFileName  = "meta.json"
)

// HNSW construction parameters. efSearch is the query-time beam width and is
// the only knob exposed through config.
const (
	hnswM              = 16
	hnswMaxNeighbors0  = 32
	hnswEfConstruction = 200
	defaultEfSearch    = 64

	// Fixed seed keeps layer assignment, and therefore the on-disk graph,
	// reproducible for a given reference corpus.
	hnswSeed = 0x5ca1e
)

// Hit is one ANN search result.
type Hit struct {
	CardID    string
	Distance  float64
	ImagePath string
}

// ReferenceMeta maps an index row back to a reference card. The metadata
// table is persisted alongside the graph and is read-only at query time.
type ReferenceMeta struct {
	CardID    string `json:"card_id"`
	ImagePath string `json:"image_path"`
	Name      string `json:"name"`
	SetID     string `json:"set_id"`
	Number    string `json:"number"`
	Rarity    string `json:"rarity,omitempty"`
}

type hnswNode struct {
	Vector    []float32
	Neighbors [][]int32 // adjacency per layer, layer 0 first
}

type graphData struct {
	Dim      int
	Entry    int32
	MaxLayer int
	Nodes    []hnswNode
}

// Index is an approximate-nearest-neighbor structure over reference card
// embeddings. Queries never return a card that was not present at build
// time. The graph is read-only after Build/Load and safe for concurrent
// searches.
type Index struct {
	graph    graphData
	meta     []ReferenceMeta
	efSearch int
	levelMul float64
	rng      *rand.Rand
}

// NewIndex creates an empty index for dim-dimensional unit vectors.
func NewIndex(dim, efSearch int) *Index {
	if efSearch <= 0 {
		efSearch = defaultEfSearch
	}
	return &Index{
		graph:    graphData{Dim: dim, Entry: -1, MaxLayer: -1},
		efSearch: efSearch,
		levelMul: 1.0 / math.Log(float64(hnswM)),
		rng:      rand.New(rand.NewSource(hnswSeed)),
	}
}

// Len returns the number of reference entries in the index.
func (ix *Index) Len() int { return len(ix.graph.Nodes) }

// Dim returns the embedding dimension the index was built for.
func (ix *Index) Dim() int { return ix.graph.Dim }

// Meta returns the metadata row for an index position.
func (ix *Index) Meta(row int) ReferenceMeta { return ix.meta[row] }

// cosineDistance assumes both vectors are unit-normalized, so the cosine
// distance reduces to 1 minus the dot product.
func cosineDistance(a, b []float32) float64 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1.0 - float64(dot)
}

// Add inserts one reference embedding with its metadata. Build-time only;
// not safe to call concurrently with Search.
func (ix *Index) Add(vec []float32, meta ReferenceMeta) error {
	if len(vec) != ix.graph.Dim {
		return fmt.Errorf("%w: vector dimension %d, index expects %d",
			domain.ErrInvalidRequest, len(vec), ix.graph.Dim)
	}

	level := int(math.Floor(-math.Log(ix.rng.Float64()) * ix.levelMul))
	node := hnswNode{Vector: vec, Neighbors: make([][]int32, level+1)}
	id := int32(len(ix.graph.Nodes))
	ix.graph.Nodes = append(ix.graph.Nodes, node)
	ix.meta = append(ix.meta, meta)

	if ix.graph.Entry < 0 {
		ix.graph.Entry = id
		ix.graph.MaxLayer = level
		return nil
	}

	ep := ix.graph.Entry
	// Greedy descent through layers above the new node's level.
	for lc := ix.graph.MaxLayer; lc > level; lc-- {
		ep = ix.greedyClosest(vec, ep, lc)
	}

	top := level
	if top > ix.graph.MaxLayer {
		top = ix.graph.MaxLayer
	}
	for lc := top; lc >= 0; lc-- {
		found := ix.searchLayer(vec, ep, hnswEfConstruction, lc)
		neighbors := found
		if len(neighbors) > hnswM {
			neighbors = neighbors[:hnswM]
		}
		for _, n := range neighbors {
			ix.link(id, n.id, lc)
			ix.link(n.id, id, lc)
		}
		if len(found) > 0 {
			ep = found[0].id
		}
	}

	if level > ix.graph.MaxLayer {
		ix.graph.MaxLayer = level
		ix.graph.Entry = id
	}
	return nil
}

// link adds dst to src's adjacency at layer lc, pruning back to the layer's
// neighbor budget by keeping the closest.
func (ix *Index) link(src, dst int32, lc int) {
	if src == dst {
		return
	}
	node := &ix.graph.Nodes[src]
	for _, n := range node.Neighbors[lc] {
		if n == dst {
			return
		}
	}
	node.Neighbors[lc] = append(node.Neighbors[lc], dst)

	budget := hnswM
	if lc == 0 {
		budget = hnswMaxNeighbors0
	}
	if len(node.Neighbors[lc]) <= budget {
		return
	}

	// Prune: keep the `budget` closest neighbors.
	type nd struct {
		id   int32
		dist float64
	}
	nds := make([]nd, 0, len(node.Neighbors[lc]))
	for _, n := range node.Neighbors[lc] {
		nds = append(nds, nd{n, cosineDistance(node.Vector, ix.graph.Nodes[n].Vector)})
	}
	for i := 1; i < len(nds); i++ {
		for j := i; j > 0 && nds[j].dist < nds[j-1].dist; j-- {
			nds[j], nds[j-1] = nds[j-1], nds[j]
		}
	}
	pruned := make([]int32, budget)
	for i := 0; i < budget; i++ {
		pruned[i] = nds[i].id
	}
	node.Neighbors[lc] = pruned
}

type scored struct {
	id   int32
	dist float64
}

// minQueue is a min-heap of candidates ordered by distance.
type minQueue []scored

func (q minQueue) Len() int            { return len(q) }
func (q minQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q minQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)         { *q = append(*q, x.(scored)) }
func (q *minQueue) Pop() any           { old := *q; n := len(old); x := old[n-1]; *q = old[:n-1]; return x }

// maxQueue is a max-heap used as the bounded result set.
type maxQueue []scored

func (q maxQueue) Len() int            { return len(q) }
func (q maxQueue) Less(i, j int) bool  { return q[i].dist > q[j].dist }
func (q maxQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x any)         { *q = append(*q, x.(scored)) }
func (q *maxQueue) Pop() any           { old := *q; n := len(old); x := old[n-1]; *q = old[:n-1]; return x }

// greedyClosest walks one layer greedily toward the query.
func (ix *Index) greedyClosest(q []float32, ep int32, lc int) int32 {
	cur := ep
	curDist := cosineDistance(q, ix.graph.Nodes[cur].Vector)
	for {
		improved := false
		for _, n := range ix.graph.Nodes[cur].Neighbors[lc] {
			if d := cosineDistance(q, ix.graph.Nodes[n].Vector); d < curDist {
				cur, curDist = n, d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs the beam search at one layer and returns up to ef
// results sorted ascending by distance.
func (ix *Index) searchLayer(q []float32, ep int32, ef, lc int) []scored {
	visited := map[int32]bool{ep: true}
	epDist := cosineDistance(q, ix.graph.Nodes[ep].Vector)

	candidates := minQueue{{ep, epDist}}
	results := maxQueue{{ep, epDist}}
	heap.Init(&candidates)
	heap.Init(&results)

	for candidates.Len() > 0 {
		c := heap.Pop(&candidates).(scored)
		if c.dist > results[0].dist && results.Len() >= ef {
			break
		}
		for _, n := range ix.graph.Nodes[c.id].Neighbors[lc] {
			if visited[n] {
				continue
			}
			visited[n] = true
			d := cosineDistance(q, ix.graph.Nodes[n].Vector)
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&candidates, scored{n, d})
				heap.Push(&results, scored{n, d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(scored)
	}
	return out
}

// Search returns up to k reference hits ordered by non-decreasing cosine
// distance. An empty index yields an empty slice, not an error.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidRequest, k)
	}
	if len(ix.graph.Nodes) == 0 {
		return []Hit{}, nil
	}
	if len(query) != ix.graph.Dim {
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d",
			domain.ErrInvalidRequest, len(query), ix.graph.Dim)
	}

	ep := ix.graph.Entry
	for lc := ix.graph.MaxLayer; lc > 0; lc-- {
		ep = ix.greedyClosest(query, ep, lc)
	}

	ef := ix.efSearch
	if ef < k {
		ef = k
	}
	found := ix.searchLayer(query, ep, ef, 0)
	if len(found) > k {
		found = found[:k]
	}

	hits := make([]Hit, len(found))
	for i, f := range found {
		hits[i] = Hit{
			CardID:    ix.meta[f.id].CardID,
			Distance:  f.dist,
			ImagePath: ix.meta[f.id].ImagePath,
		}
	}
	return hits, nil
}

// Save writes the graph and metadata table into dir.
func (ix *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, GraphFileName))
	if err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(&ix.graph); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}

	mf, err := os.Create(filepath.Join(dir, MetaFileName))
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	defer mf.Close()
	enc := json.NewEncoder(mf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ix.meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return nil
}

// LoadIndex reads the on-disk artifacts from dir. Missing or corrupt
// artifacts surface as ErrIndexUnavailable so callers can degrade to the
// OCR fallback path.
func LoadIndex(dir string, efSearch int) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, GraphFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer f.Close()

	ix := NewIndex(0, efSearch)
	if err := gob.NewDecoder(f).Decode(&ix.graph); err != nil {
		return nil, fmt.Errorf("%w: decode graph: %v", domain.ErrIndexUnavailable, err)
	}

	mf, err := os.Open(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer mf.Close()
	if err := json.NewDecoder(mf).Decode(&ix.meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", domain.ErrIndexUnavailable, err)
	}

	if len(ix.meta) != len(ix.graph.Nodes) {
		return nil, fmt.Errorf("%w: metadata rows %d do not match graph nodes %d",
			domain.ErrIndexUnavailable, len(ix.meta), len(ix.graph.Nodes))
	}
	return ix, nil
}
