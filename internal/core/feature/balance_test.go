package feature

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

// imbalanced builds two separated clusters with the given class sizes.
func imbalanced(majority, minority int) (*mat.Dense, []float64) {
	n := majority + minority
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < majority; i++ {
		x.SetRow(i, []float64{float64(i%10) * 0.1, float64(i/10) * 0.1})
	}
	for i := 0; i < minority; i++ {
		x.SetRow(majority+i, []float64{10 + float64(i%5)*0.1, 10 + float64(i/5)*0.1})
		y[majority+i] = 1
	}
	return x, y
}

func ratio(labels []float64) float64 {
	counts := LabelCounts(labels)
	lo, hi := minorityMajority(counts)
	return float64(counts[lo]) / float64(counts[hi])
}

func TestRebalanceImprovesMinorityRatio(t *testing.T) {
	x, y := imbalanced(90, 10)
	before := ratio(y)

	outX, outY, err := NewBalancer(0, 0, 7).Rebalance(context.Background(), x, y)
	if err != nil {
		t.Fatalf("Rebalance() error = %v", err)
	}
	rows, cols := outX.Dims()
	if rows != len(outY) || cols != 2 {
		t.Fatalf("unexpected shape %dx%d for %d labels", rows, cols, len(outY))
	}
	after := ratio(outY)
	if after <= before {
		t.Fatalf("expected ratio to improve, before=%v after=%v", before, after)
	}
	if after < 0.9 {
		t.Fatalf("expected near parity on separable data, got %v", after)
	}
}

func TestRebalanceSyntheticPointsStayInsideMinorityHull(t *testing.T) {
	x, y := imbalanced(90, 10)
	outX, outY, err := NewBalancer(0, 0, 11).Rebalance(context.Background(), x, y)
	if err != nil {
		t.Fatalf("Rebalance() error = %v", err)
	}
	for i, label := range outY {
		if label != 1 {
			continue
		}
		row := outX.RawRowView(i)
		if row[0] < 10-1e-9 || row[0] > 10.4+1e-9 || row[1] < 10-1e-9 || row[1] > 10.1+1e-9 {
			t.Fatalf("synthetic point %v outside minority cluster", row)
		}
	}
}

func TestRebalanceIsReproducibleWithSeed(t *testing.T) {
	x, y := imbalanced(90, 10)
	a, ya, err := NewBalancer(0, 0, 42).Rebalance(context.Background(), x, y)
	if err != nil {
		t.Fatalf("Rebalance() error = %v", err)
	}
	b, yb, err := NewBalancer(0, 0, 42).Rebalance(context.Background(), x, y)
	if err != nil {
		t.Fatalf("Rebalance() error = %v", err)
	}
	if !mat.Equal(a, b) || len(ya) != len(yb) {
		t.Fatalf("same seed produced different samples")
	}
}

func TestRebalanceRejectsTooFewMinoritySamples(t *testing.T) {
	x, y := imbalanced(20, 5)
	_, _, err := NewBalancer(5, 3, 1).Rebalance(context.Background(), x, y)
	if !domain.IsKind(err, domain.ErrDataInvalid) {
		t.Fatalf("expected ErrDataInvalid, got %v", err)
	}
}

func TestRebalanceRejectsSingleClass(t *testing.T) {
	x, _ := imbalanced(20, 0)
	_, _, err := NewBalancer(0, 0, 1).Rebalance(context.Background(), x, make([]float64, 20))
	if !domain.IsKind(err, domain.ErrDataInvalid) {
		t.Fatalf("expected ErrDataInvalid, got %v", err)
	}
}

func TestRebalanceRejectsNaN(t *testing.T) {
	x, y := imbalanced(30, 10)
	x.Set(3, 1, math.NaN())
	_, _, err := NewBalancer(0, 0, 1).Rebalance(context.Background(), x, y)
	if !domain.IsKind(err, domain.ErrDataInvalid) {
		t.Fatalf("expected ErrDataInvalid, got %v", err)
	}
}

func TestRebalanceStopsOnCancelledContext(t *testing.T) {
	x, y := imbalanced(900, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewBalancer(0, 0, 3).Rebalance(ctx, x, y)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNeighborIndexMatchesExhaustiveSearch(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	points := make([][]float64, 500)
	for i := range points {
		points[i] = make([]float64, 11)
		for j := range points[i] {
			points[i][j] = rng.Float64()
		}
	}
	index := newNeighborIndex(points)
	for _, self := range []int{0, 17, 250, 499} {
		got := index.nearest(self, 5)
		want := exhaustiveNearest(points, self, 5)
		if len(got) != len(want) {
			t.Fatalf("point %d: got %v, want %v", self, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("point %d: got %v, want %v", self, got, want)
			}
		}
	}
}

func TestNeighborIndexSkipsSelfAmongDuplicates(t *testing.T) {
	points := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}, {9, 9}}
	got := newNeighborIndex(points).nearest(2, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 neighbours, got %v", got)
	}
	for _, idx := range got {
		if idx == 2 || idx == 4 {
			t.Fatalf("unexpected neighbour set %v", got)
		}
	}
}

func TestRebalanceScalesToLargeSplits(t *testing.T) {
	if testing.Short() {
		t.Skip("large split")
	}
	rng := rand.New(rand.NewPCG(11, 11))
	const n = 20000
	x := mat.NewDense(n, 6, nil)
	y := make([]float64, n)
	for i := range n {
		for j := range 6 {
			x.Set(i, j, rng.Float64())
		}
		if i%8 == 0 {
			y[i] = 1
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, _, err := NewBalancer(0, 0, 7).Rebalance(ctx, x, y); err != nil {
		t.Fatalf("Rebalance() error = %v", err)
	}
}

func exhaustiveNearest(points [][]float64, self, k int) []int {
	type pair struct {
		d   float64
		idx int
	}
	var all []pair
	for j, p := range points {
		if j == self {
			continue
		}
		all = append(all, pair{d: sample{coords: points[self]}.Distance(sample{coords: p}), idx: j})
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].d != all[b].d {
			return all[a].d < all[b].d
		}
		return all[a].idx < all[b].idx
	})
	out := make([]int, k)
	for i := range out {
		out[i] = all[i].idx
	}
	return out
}

func TestCleanRemovesAmbiguousMajorityPoints(t *testing.T) {
	points := [][]float64{{0}, {0.1}, {0.2}, {0.3}, {5}, {5.1}, {5.2}, {5.3}, {5.15}}
	labels := []float64{0, 0, 0, 0, 1, 1, 1, 1, 0}
	b := NewBalancer(0, 3, 1)
	_, out, err := b.clean(context.Background(), points, labels)
	if err != nil {
		t.Fatalf("clean() error = %v", err)
	}
	counts := LabelCounts(out)
	if counts[0] != 4 {
		t.Fatalf("expected the stray majority point removed, got counts %v", counts)
	}
}

func TestFinalArrayAppendsLabelColumn(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	out, err := FinalArray(x, []float64{0, 1})
	if err != nil {
		t.Fatalf("FinalArray() error = %v", err)
	}
	want := mat.NewDense(2, 3, []float64{1, 2, 0, 3, 4, 1})
	if !mat.Equal(out, want) {
		t.Fatalf("unexpected final array %v", mat.Formatted(out))
	}
	back, labels := SplitFinalArray(out)
	if !mat.Equal(back, x) || labels[1] != 1 {
		t.Fatalf("SplitFinalArray did not invert FinalArray")
	}
	if _, err := FinalArray(x, []float64{1}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}
