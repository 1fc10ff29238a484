package surrogate

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

const (
	defaultNumTrees     = 10
	defaultSeed         = 42
	forestMinSplit      = 3
	forestMinLeaf       = 1
	forestMaxDepth      = 20
	forestFeatureRatio  = 5.0 / 6.0
	forestMinLeafVarEps = 1e-10
)

// Forest is a probabilistic random forest: bagged regression trees whose
// spread across trees (and within leaves) gives a predictive variance.
type Forest struct {
	mu sync.RWMutex

	dims     int
	numTrees int
	seed     int64
	trees    []*regressionTree

	logger *zap.Logger
}

// NewForest creates a context-free probabilistic random forest over the space.
func NewForest(sp *space.Space, opts Options) (*Forest, error) {
	return newForest(sp.Len(), opts), nil
}

func newForest(dims int, opts Options) *Forest {
	numTrees := opts.NumTrees
	if numTrees <= 0 {
		numTrees = defaultNumTrees
	}
	seed := opts.Seed
	if seed == 0 {
		seed = defaultSeed
	}
	return &Forest{
		dims:     dims,
		numTrees: numTrees,
		seed:     seed,
		logger:   opts.logger("random_forest"),
	}
}

// Train grows a fresh forest on the full dataset. The bootstrap sampling is
// reseeded on every call, so identical inputs yield identical forests.
func (f *Forest) Train(X *mat.Dense, Y *mat.VecDense, contexts *mat.Dense) error {
	if err := checkTrainShapes("random_forest", f.dims, X, Y, contexts); err != nil {
		return err
	}

	rows, cols := X.Dims()
	rng := rand.New(rand.NewSource(f.seed))
	maxFeatures := int(math.Max(1, math.Floor(float64(cols)*forestFeatureRatio)))

	trees := make([]*regressionTree, f.numTrees)
	for t := range trees {
		sample := make([]int, rows)
		for i := range sample {
			sample[i] = rng.Intn(rows)
		}
		b := &treeBuilder{X: X, y: Y, rng: rng, maxFeatures: maxFeatures}
		tree := &regressionTree{}
		b.tree = tree
		b.grow(sample, 0)
		trees[t] = tree
	}

	f.mu.Lock()
	f.trees = trees
	f.mu.Unlock()

	f.logger.Debug("Trained random forest",
		zap.Int("samples", rows),
		zap.Int("trees", len(trees)),
		zap.Int("max_features", maxFeatures),
	)
	return nil
}

// Predict returns the forest mean and the law-of-total-variance estimate
// over trees and leaves.
func (f *Forest) Predict(X *mat.Dense, contexts *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	if err := checkPredictShapes("random_forest", f.dims, X, contexts); err != nil {
		return nil, nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.trees) == 0 {
		return nil, nil, optimization.WrapError(optimization.ErrNotTrained, "random_forest: Forest.Predict")
	}

	rows, _ := X.Dims()
	mean := mat.NewVecDense(rows, nil)
	variance := mat.NewVecDense(rows, nil)
	n := float64(len(f.trees))
	for i := 0; i < rows; i++ {
		x := X.RawRowView(i)
		sum, sumSq := 0.0, 0.0
		for _, t := range f.trees {
			leaf := t.leaf(x)
			sum += leaf.mean
			sumSq += leaf.variance + leaf.mean*leaf.mean
		}
		m := sum / n
		mean.SetVec(i, m)
		variance.SetVec(i, math.Max(sumSq/n-m*m, 0))
	}
	return mean, variance, nil
}

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	leaf      bool
	mean      float64
	variance  float64
}

type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) leaf(x []float64) treeNode {
	n := t.nodes[0]
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n
}

type treeBuilder struct {
	X           *mat.Dense
	y           *mat.VecDense
	rng         *rand.Rand
	maxFeatures int
	tree        *regressionTree
}

// grow appends the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	node := len(b.tree.nodes)
	b.tree.nodes = append(b.tree.nodes, treeNode{})

	values := make([]float64, len(idx))
	for i, r := range idx {
		values[i] = b.y.AtVec(r)
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	if math.IsNaN(variance) {
		variance = 0
	}

	if len(idx) < forestMinSplit || depth >= forestMaxDepth || variance < forestMinLeafVarEps {
		b.tree.nodes[node] = treeNode{leaf: true, mean: mean, variance: variance}
		return node
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		b.tree.nodes[node] = treeNode{leaf: true, mean: mean, variance: variance}
		return node
	}

	var left, right []int
	for _, r := range idx {
		if b.X.At(r, feature) <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.nodes[node] = treeNode{feature: feature, threshold: threshold, left: l, right: r}
	return node
}

// bestSplit searches a random subset of features for the threshold that
// minimizes the summed squared error of both children.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	_, cols := b.X.Dims()
	features := b.rng.Perm(cols)[:b.maxFeatures]

	bestFeature, bestThreshold := -1, 0.0
	bestSSE := math.Inf(1)
	order := append([]int(nil), idx...)
	n := len(order)

	for _, feat := range features {
		sort.Slice(order, func(i, j int) bool {
			return b.X.At(order[i], feat) < b.X.At(order[j], feat)
		})

		totalSum, totalSq := 0.0, 0.0
		for _, r := range order {
			v := b.y.AtVec(r)
			totalSum += v
			totalSq += v * v
		}

		leftSum, leftSq := 0.0, 0.0
		for i := 0; i < n-1; i++ {
			v := b.y.AtVec(order[i])
			leftSum += v
			leftSq += v * v

			lo, hi := b.X.At(order[i], feat), b.X.At(order[i+1], feat)
			if lo == hi || i+1 < forestMinLeaf || n-i-1 < forestMinLeaf {
				continue
			}
			nl, nr := float64(i+1), float64(n-i-1)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = feat
				bestThreshold = (lo + hi) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
