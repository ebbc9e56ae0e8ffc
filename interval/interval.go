package interval

import (
	"fmt"
	"math"
)

// PosType is the coordinate type.  int32 covers every human chromosome, and
// it is what BAM-derived callers emit.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// Interval is a closed, 1-based range [Start, End] on Chrom.
type Interval struct {
	Chrom string
	Start PosType
	End   PosType
}

// Len returns the number of bases covered by iv.
func (iv Interval) Len() int64 { return int64(iv.End) - int64(iv.Start) + 1 }

// Valid checks the Interval invariants: nonempty chromosome, positive start,
// start <= end.
func (iv Interval) Valid() error {
	if iv.Chrom == "" {
		return fmt.Errorf("interval %v: empty chromosome", iv)
	}
	if iv.Start < 1 {
		return fmt.Errorf("interval %v: start must be >= 1", iv)
	}
	if iv.Start > iv.End {
		return fmt.Errorf("interval %v: start > end", iv)
	}
	return nil
}

// String returns the samtools-style region "chr:start-end".
func (iv Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", iv.Chrom, iv.Start, iv.End)
}

// Overlaps is true iff a and b are on the same chromosome and share at least
// one base.
func Overlaps(a, b Interval) bool {
	return a.Chrom == b.Chrom && a.Start <= b.End && b.Start <= a.End
}

// Intersect returns the bases shared by a and b.  ok is false if they don't
// overlap.
func Intersect(a, b Interval) (iv Interval, ok bool) {
	if !Overlaps(a, b) {
		return Interval{}, false
	}
	iv = Interval{Chrom: a.Chrom, Start: a.Start, End: a.End}
	if b.Start > iv.Start {
		iv.Start = b.Start
	}
	if b.End < iv.End {
		iv.End = b.End
	}
	return iv, true
}

// Distance returns the gap between a and b: zero when they overlap, otherwise
// later.Start - earlier.End.  Intervals on different chromosomes are
// infinitely far apart; Distance returns math.MaxInt64 for them.
func Distance(a, b Interval) int64 {
	if a.Chrom != b.Chrom {
		return math.MaxInt64
	}
	if a.Start > b.Start {
		a, b = b, a
	}
	if b.Start <= a.End {
		return 0
	}
	return int64(b.Start) - int64(a.End)
}

// Union returns the smallest interval spanning both a and b.  It is defined
// only when the two overlap, or when they lie within tolerance bases of each
// other (a nearest-neighbour merge); ok is false otherwise.  Pass tolerance=0
// to require an actual overlap.
func Union(a, b Interval, tolerance PosType) (iv Interval, ok bool) {
	if d := Distance(a, b); d > int64(tolerance) {
		return Interval{}, false
	}
	return Span(a, b), true
}

// Span returns the smallest interval covering a and b regardless of their
// distance.
//
// REQUIRES: a.Chrom == b.Chrom
func Span(a, b Interval) Interval {
	if a.Chrom != b.Chrom {
		panic(fmt.Sprintf("interval.Span: chromosome mismatch %v %v", a, b))
	}
	iv := a
	if b.Start < iv.Start {
		iv.Start = b.Start
	}
	if b.End > iv.End {
		iv.End = b.End
	}
	return iv
}

// Contains is true iff outer covers inner after widening outer by slack bases
// on both sides.
func Contains(outer, inner Interval, slack PosType) bool {
	return outer.Chrom == inner.Chrom &&
		int64(inner.Start) >= int64(outer.Start)-int64(slack) &&
		int64(inner.End) <= int64(outer.End)+int64(slack)
}

// OverlapFraction returns |a ∩ b| / min(|a|, |b|), or 0 if a and b don't
// overlap.
func OverlapFraction(a, b Interval) float64 {
	iv, ok := Intersect(a, b)
	if !ok {
		return 0
	}
	smaller := a.Len()
	if l := b.Len(); l < smaller {
		smaller = l
	}
	return float64(iv.Len()) / float64(smaller)
}
