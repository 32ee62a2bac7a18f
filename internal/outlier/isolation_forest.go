// Package outlier implements an Isolation Forest outlier scorer.
//
// Scores follow Liu et al.: s(x) = 2^(-E[h(x)] / c(psi)), where h is the path
// length of x in a random isolation tree and c(psi) the average unsuccessful
// BST search length for the subsample size psi. Scores near 1 are anomalous,
// scores well below 0.5 are normal.
//
// Labelling is batch relative. After fitting, the Contamination fraction of
// the batch with the highest scores is flagged, using the same percentile
// offset as scikit-learn's IsolationForest.
package outlier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Config controls forest construction.
type Config struct {
	// NumTrees is the number of isolation trees in the ensemble.
	NumTrees int
	// SampleSize is the subsample drawn (without replacement) per tree.
	// It is capped at the batch size.
	SampleSize int
	// Contamination is the expected fraction of outliers, in (0, 0.5].
	Contamination float64
	// Seed makes tree construction reproducible.
	Seed int64
}

// DefaultConfig mirrors the usual library defaults.
func DefaultConfig() Config {
	return Config{
		NumTrees:      100,
		SampleSize:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.NumTrees < 1 {
		return fmt.Errorf("num_trees must be at least 1, got %d", c.NumTrees)
	}
	if c.SampleSize < 2 {
		return fmt.Errorf("sample_size must be at least 2, got %d", c.SampleSize)
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %g", c.Contamination)
	}
	return nil
}

var (
	// ErrDimension is returned when points have different feature counts.
	ErrDimension = errors.New("points have inconsistent dimensions")
	// ErrNonFinite is returned when a feature is NaN or infinite.
	ErrNonFinite = errors.New("feature value is not finite")
	// ErrNotFitted is returned when scoring before Fit.
	ErrNotFitted = errors.New("forest is not fitted")
)

// isolationTree is a node of a single tree. Leaves record how many sample
// points reached them.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left         *isolationTree
	right        *isolationTree
	size         int
	isLeaf       bool
}

// Forest is an Isolation Forest ensemble.
type Forest struct {
	cfg        Config
	trees      []*isolationTree
	sampleSize int
	maxDepth   int
	dims       int
	rng        *rand.Rand
}

// New returns an unfitted forest.
func New(cfg Config) (*Forest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Forest{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Fit builds the ensemble from points. Every point must have the same
// number of finite features.
func (f *Forest) Fit(points [][]float64) error {
	dims, err := checkPoints(points)
	if err != nil {
		return err
	}
	f.dims = dims
	if len(points) == 0 {
		f.trees = []*isolationTree{}
		return nil
	}

	f.sampleSize = min(f.cfg.SampleSize, len(points))
	f.maxDepth = int(math.Ceil(math.Log2(float64(max(f.sampleSize, 2)))))

	// Seeds are drawn up front so the result does not depend on scheduling.
	seeds := make([]int64, f.cfg.NumTrees)
	for i := range seeds {
		seeds[i] = f.rng.Int63()
	}

	trees := make([]*isolationTree, f.cfg.NumTrees)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			trees[i] = f.buildTree(rng, f.sample(rng, points), 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.trees = trees
	return nil
}

// Score returns the anomaly score of one point.
func (f *Forest) Score(point []float64) (float64, error) {
	if f.trees == nil {
		return 0, ErrNotFitted
	}
	if len(point) != f.dims {
		return 0, ErrDimension
	}
	if len(f.trees) == 0 {
		return 0.5, nil
	}

	total := 0.0
	for _, tree := range f.trees {
		total += f.pathLength(tree, point, 0)
	}
	avg := total / float64(len(f.trees))

	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5, nil
	}
	return math.Pow(2, -avg/c), nil
}

// Scores scores every point.
func (f *Forest) Scores(points [][]float64) ([]float64, error) {
	out := make([]float64, len(points))
	for i, p := range points {
		s, err := f.Score(p)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// Prediction is the batch labelling produced by FitPredict.
type Prediction struct {
	Scores    []float64
	Anomalous []bool
	// Threshold is the score above which a point is flagged.
	Threshold float64
}

// Count returns the number of flagged points.
func (p *Prediction) Count() int {
	n := 0
	for _, a := range p.Anomalous {
		if a {
			n++
		}
	}
	return n
}

// FitPredict fits a forest on points and flags the Contamination fraction
// with the highest scores. Ties at the threshold are not flagged, so the
// flagged count can be lower than the fraction for heavily duplicated data.
func FitPredict(cfg Config, points [][]float64) (*Prediction, error) {
	f, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := f.Fit(points); err != nil {
		return nil, err
	}
	scores, err := f.Scores(points)
	if err != nil {
		return nil, err
	}

	pred := &Prediction{Scores: scores, Anomalous: make([]bool, len(points))}
	if len(points) < 2 {
		pred.Threshold = math.Inf(1)
		return pred, nil
	}
	pred.Threshold = quantile(scores, 1-cfg.Contamination)
	for i, s := range scores {
		pred.Anomalous[i] = s > pred.Threshold
	}
	return pred, nil
}

func checkPoints(points [][]float64) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	dims := len(points[0])
	if dims == 0 {
		return 0, ErrDimension
	}
	for i, p := range points {
		if len(p) != dims {
			return 0, fmt.Errorf("point %d: %w", i, ErrDimension)
		}
		for j, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("point %d feature %d: %w", i, j, ErrNonFinite)
			}
		}
	}
	return dims, nil
}

// sample draws sampleSize points without replacement (partial Fisher-Yates).
func (f *Forest) sample(rng *rand.Rand, points [][]float64) [][]float64 {
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	out := make([][]float64, f.sampleSize)
	for i := 0; i < f.sampleSize; i++ {
		j := i + rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = points[idx[i]]
	}
	return out
}

func (f *Forest) buildTree(rng *rand.Rand, data [][]float64, depth int) *isolationTree {
	if len(data) <= 1 || depth >= f.maxDepth || allIdentical(data) {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	// Only features that still vary can split the node.
	var candidates []int
	for j := 0; j < f.dims; j++ {
		lo, hi := featureRange(data, j)
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := featureRange(data, feature)
	split := lo + rng.Float64()*(hi-lo)

	left, right := splitData(data, feature, split)
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	return &isolationTree{
		splitFeature: feature,
		splitValue:   split,
		left:         f.buildTree(rng, left, depth+1),
		right:        f.buildTree(rng, right, depth+1),
		size:         len(data),
	}
}

func (f *Forest) pathLength(tree *isolationTree, point []float64, depth int) float64 {
	if tree.isLeaf {
		// Unbuilt subtree below the leaf is estimated by c(size).
		return float64(depth) + averagePathLength(tree.size)
	}
	if point[tree.splitFeature] < tree.splitValue {
		return f.pathLength(tree.left, point, depth+1)
	}
	return f.pathLength(tree.right, point, depth+1)
}

// averagePathLength is c(n) = 2H(n-1) - 2(n-1)/n.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	return 2*harmonicNumber(n-1) - (2 * float64(n-1) / float64(n))
}

// harmonicNumber approximates H(n) with ln(n) + Euler-Mascheroni.
func harmonicNumber(n int) float64 {
	return math.Log(float64(n)) + 0.5772156649
}

func allIdentical(data [][]float64) bool {
	first := data[0]
	for _, p := range data[1:] {
		for j := range first {
			if p[j] != first[j] {
				return false
			}
		}
	}
	return true
}

func featureRange(data [][]float64, feature int) (float64, float64) {
	lo, hi := data[0][feature], data[0][feature]
	for _, p := range data[1:] {
		v := p[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func splitData(data [][]float64, feature int, split float64) ([][]float64, [][]float64) {
	var left, right [][]float64
	for _, p := range data {
		if p[feature] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	return left, right
}

// quantile returns the q-th quantile of values with linear interpolation
// between closest ranks.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
