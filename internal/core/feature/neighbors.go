package feature

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// sample is a row of the feature matrix that remembers its position.
type sample struct {
	idx    int
	coords []float64
}

func (s sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return s.coords[d] - c.(sample).coords[d]
}

func (s sample) Dims() int { return len(s.coords) }

// Distance is the squared Euclidean distance.
func (s sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample).coords
	var sum float64
	for i, v := range s.coords {
		d := v - q[i]
		sum += d * d
	}
	return sum
}

type samples []sample

func (s samples) Index(i int) kdtree.Comparable         { return s[i] }
func (s samples) Len() int                              { return len(s) }
func (s samples) Slice(start, end int) kdtree.Interface { return s[start:end] }

// Pivot sorts along the plane with the row index as tie-break, so the tree
// shape depends only on the data.
func (s samples) Pivot(d kdtree.Dim) int {
	sort.Sort(plane{samples: s, dim: int(d)})
	return len(s) / 2
}

type plane struct {
	samples
	dim int
}

func (p plane) Less(i, j int) bool {
	a, b := p.samples[i], p.samples[j]
	if a.coords[p.dim] != b.coords[p.dim] {
		return a.coords[p.dim] < b.coords[p.dim]
	}
	return a.idx < b.idx
}

func (p plane) Swap(i, j int) { p.samples[i], p.samples[j] = p.samples[j], p.samples[i] }

// neighborIndex answers k-nearest-neighbour queries over a fixed point set.
type neighborIndex struct {
	points [][]float64
	tree   *kdtree.Tree
}

func newNeighborIndex(points [][]float64) *neighborIndex {
	set := make(samples, len(points))
	for i, p := range points {
		set[i] = sample{idx: i, coords: p}
	}
	return &neighborIndex{points: points, tree: kdtree.New(set, false)}
}

// nearest returns the indices of the k points closest to points[self],
// excluding self, ordered by distance then index.
func (n *neighborIndex) nearest(self, k int) []int {
	if k <= 0 || n.tree.Len() <= 1 {
		return nil
	}
	keep := kdtree.NewNKeeper(k + 1)
	n.tree.NearestSet(keep, sample{idx: self, coords: n.points[self]})

	found := make([]kdtree.ComparableDist, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil || c.Comparable.(sample).idx == self {
			continue
		}
		found = append(found, c)
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Dist != found[j].Dist {
			return found[i].Dist < found[j].Dist
		}
		return found[i].Comparable.(sample).idx < found[j].Comparable.(sample).idx
	})
	if len(found) > k {
		found = found[:k]
	}
	out := make([]int, len(found))
	for i, c := range found {
		out[i] = c.Comparable.(sample).idx
	}
	return out
}
