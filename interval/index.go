package interval

import (
	"sort"

	store "github.com/biogo/store/interval"
)

// indexEntry is the element type stored in the per-chromosome trees.  The
// tree requires a unique ID per element; it is the insertion sequence number.
type indexEntry struct {
	uid   uintptr
	start int
	end   int
	value int
}

// The trees hold half-open ranges [start, end+1) so that single-base
// intervals are not empty.  closedRange is a query against them.
type closedRange struct{ start, end int }

func (q closedRange) Overlap(b store.IntRange) bool {
	return q.start < b.End && b.Start <= q.end
}

func (e indexEntry) Overlap(b store.IntRange) bool {
	return e.start < b.End && b.Start <= e.end
}
func (e indexEntry) ID() uintptr { return e.uid }
func (e indexEntry) Range() store.IntRange {
	return store.IntRange{Start: e.start, End: e.end + 1}
}

// Index answers overlap queries over a set of intervals.  Each interval is
// stored with an int payload, usually the position of the owning record in
// the caller's slice.  Thread compatible.
type Index struct {
	trees map[string]*store.IntTree
	n     int
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{trees: map[string]*store.IntTree{}}
}

// Insert adds iv with the given payload.
func (x *Index) Insert(iv Interval, value int) error {
	if err := iv.Valid(); err != nil {
		return err
	}
	t := x.trees[iv.Chrom]
	if t == nil {
		t = &store.IntTree{}
		x.trees[iv.Chrom] = t
	}
	x.n++
	return t.Insert(indexEntry{
		uid:   uintptr(x.n),
		start: int(iv.Start),
		end:   int(iv.End),
		value: value,
	}, false)
}

// Len returns the number of intervals in the index.
func (x *Index) Len() int { return x.n }

// Overlapping returns the payloads of all the intervals that share at least
// one base with iv, in ascending order.
func (x *Index) Overlapping(iv Interval) []int {
	t := x.trees[iv.Chrom]
	if t == nil || t.Len() == 0 {
		return nil
	}
	hits := t.Get(closedRange{start: int(iv.Start), end: int(iv.End)})
	values := make([]int, len(hits))
	for i, h := range hits {
		values[i] = h.(indexEntry).value
	}
	sort.Ints(values)
	return values
}

// Near returns the payloads of all the intervals within distance bases of iv
// (Distance <= distance), in ascending order.  Near(iv, 0) is the same as
// Overlapping(iv).
func (x *Index) Near(iv Interval, distance PosType) []int {
	widened := iv
	if int64(widened.Start)-int64(distance) < 1 {
		widened.Start = 1
	} else {
		widened.Start -= distance
	}
	if int64(widened.End)+int64(distance) > PosTypeMax {
		widened.End = PosTypeMax
	} else {
		widened.End += distance
	}
	return x.Overlapping(widened)
}
