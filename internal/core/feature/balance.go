package feature

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

const (
	DefaultSMOTENeighbors = 5
	DefaultENNNeighbors   = 3

	// cancelCheckEvery bounds how many samples are processed between
	// context checks.
	cancelCheckEvery = 1024
)

// Balancer corrects class imbalance by oversampling the minority class with
// synthetic points (SMOTE) and then removing every sample whose nearest
// neighbours do not all share its label (edited nearest neighbours).
type Balancer struct {
	SMOTENeighbors int
	ENNNeighbors   int

	rng *rand.Rand
}

// NewBalancer seeds the sampler. A zero seed picks a random one.
func NewBalancer(smoteK, ennK int, seed uint64) *Balancer {
	if smoteK <= 0 {
		smoteK = DefaultSMOTENeighbors
	}
	if ennK <= 0 {
		ennK = DefaultENNNeighbors
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Balancer{
		SMOTENeighbors: smoteK,
		ENNNeighbors:   ennK,
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Rebalance returns resampled features and labels. Row count generally
// differs from the input. Cancelling ctx aborts between samples.
func (b *Balancer) Rebalance(ctx context.Context, x *mat.Dense, y []float64) (*mat.Dense, []float64, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, nil, domain.WrapError(domain.ErrDataInvalid, "rebalance",
			fmt.Errorf("features/labels mismatch: %d/%d", rows, len(y)))
	}
	points := make([][]float64, rows)
	for i := range rows {
		points[i] = append([]float64(nil), x.RawRowView(i)...)
		for _, v := range points[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, domain.WrapError(domain.ErrDataInvalid, "rebalance",
					fmt.Errorf("row %d contains NaN or infinite values", i))
			}
		}
	}
	labels := append([]float64(nil), y...)

	points, labels, err := b.oversample(ctx, points, labels)
	if err != nil {
		return nil, nil, err
	}
	points, labels, err = b.clean(ctx, points, labels)
	if err != nil {
		return nil, nil, err
	}

	if len(points) == 0 {
		return &mat.Dense{}, nil, nil
	}
	out := mat.NewDense(len(points), cols, nil)
	for i, p := range points {
		out.SetRow(i, p)
	}
	return out, labels, nil
}

// oversample generates synthetic minority points until the minority class
// matches the majority class count.
func (b *Balancer) oversample(ctx context.Context, points [][]float64, labels []float64) ([][]float64, []float64, error) {
	counts := LabelCounts(labels)
	if len(counts) < 2 {
		return nil, nil, domain.WrapError(domain.ErrDataInvalid, "oversample minority",
			fmt.Errorf("need at least two classes, got %d", len(counts)))
	}
	minority, majority := minorityMajority(counts)
	if counts[minority] < b.SMOTENeighbors+1 {
		return nil, nil, domain.WrapError(domain.ErrDataInvalid, "oversample minority",
			fmt.Errorf("minority class %v has %d samples, need at least %d", minority, counts[minority], b.SMOTENeighbors+1))
	}

	var members []int
	for i, l := range labels {
		if l == minority {
			members = append(members, i)
		}
	}
	candidates := make([][]float64, len(members))
	for i, idx := range members {
		candidates[i] = points[idx]
	}

	need := counts[majority] - counts[minority]
	index := newNeighborIndex(candidates)
	neighbours := make([][]int, len(members))
	for i := 0; i < need; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("oversample minority: %w", err)
			}
		}
		pick := b.rng.IntN(len(members))
		if neighbours[pick] == nil {
			neighbours[pick] = index.nearest(pick, b.SMOTENeighbors)
		}
		nn := candidates[neighbours[pick][b.rng.IntN(len(neighbours[pick]))]]
		base := candidates[pick]

		step := b.rng.Float64()
		synthetic := make([]float64, len(base))
		copy(synthetic, nn)
		floats.Sub(synthetic, base)
		floats.Scale(step, synthetic)
		floats.Add(synthetic, base)

		points = append(points, synthetic)
		labels = append(labels, minority)
	}
	return points, labels, nil
}

// clean keeps a sample only when all of its nearest neighbours carry the same
// label. Classes that would vanish entirely are kept untouched.
func (b *Balancer) clean(ctx context.Context, points [][]float64, labels []float64) ([][]float64, []float64, error) {
	if len(points) <= b.ENNNeighbors {
		return points, labels, nil
	}
	index := newNeighborIndex(points)
	keep := make([]bool, len(points))
	kept := make(map[float64]int)
	for i := range points {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("edit nearest neighbours: %w", err)
			}
		}
		agree := true
		for _, j := range index.nearest(i, b.ENNNeighbors) {
			if labels[j] != labels[i] {
				agree = false
				break
			}
		}
		keep[i] = agree
		if agree {
			kept[labels[i]]++
		}
	}

	outPoints := make([][]float64, 0, len(points))
	outLabels := make([]float64, 0, len(labels))
	for i := range points {
		if keep[i] || kept[labels[i]] == 0 {
			outPoints = append(outPoints, points[i])
			outLabels = append(outLabels, labels[i])
		}
	}
	return outPoints, outLabels, nil
}

// LabelCounts tallies samples per label.
func LabelCounts(labels []float64) map[float64]int {
	counts := make(map[float64]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

// minorityMajority picks the least and most frequent labels. Ties resolve to
// the smaller label value so the choice is deterministic.
func minorityMajority(counts map[float64]int) (float64, float64) {
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	minority, majority := keys[0], keys[0]
	for _, k := range keys[1:] {
		if counts[k] < counts[minority] {
			minority = k
		}
		if counts[k] > counts[majority] {
			majority = k
		}
	}
	return minority, majority
}
