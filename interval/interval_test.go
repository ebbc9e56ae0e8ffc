package interval

import (
	"math"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func iv(chrom string, start, end PosType) Interval {
	return Interval{Chrom: chrom, Start: start, End: end}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a, b Interval
		want bool
	}{
		{iv("chr1", 100, 200), iv("chr1", 150, 250), true},
		{iv("chr1", 100, 200), iv("chr1", 200, 300), true}, // touching, closed coordinates
		{iv("chr1", 100, 200), iv("chr1", 201, 300), false},
		{iv("chr1", 100, 200), iv("chr2", 100, 200), false},
		{iv("chr1", 100, 100), iv("chr1", 100, 100), true},
		{iv("chr1", 50, 500), iv("chr1", 100, 200), true},
	}
	for _, tt := range tests {
		expect.EQ(t, Overlaps(tt.a, tt.b), tt.want, "%v %v", tt.a, tt.b)
		expect.EQ(t, Overlaps(tt.b, tt.a), tt.want, "%v %v", tt.b, tt.a)
	}
}

func TestDistance(t *testing.T) {
	expect.EQ(t, Distance(iv("chr1", 100, 200), iv("chr1", 150, 250)), int64(0))
	expect.EQ(t, Distance(iv("chr1", 1, 10), iv("chr1", 11, 20)), int64(1))
	expect.EQ(t, Distance(iv("chr1", 11, 20), iv("chr1", 1, 10)), int64(1))
	expect.EQ(t, Distance(iv("chr1", 1, 10), iv("chr1", 30, 40)), int64(20))
	expect.EQ(t, Distance(iv("chr1", 1, 10), iv("chr2", 1, 10)), int64(math.MaxInt64))
}

func TestUnion(t *testing.T) {
	u, ok := Union(iv("chr2", 100, 200), iv("chr2", 150, 250), 0)
	expect.True(t, ok)
	expect.EQ(t, u, iv("chr2", 100, 250))

	u, ok = Union(iv("chr2", 150, 250), iv("chr2", 100, 160), 0)
	expect.True(t, ok)
	expect.EQ(t, u, iv("chr2", 100, 250))

	// 30 bases apart.
	_, ok = Union(iv("chr2", 150, 250), iv("chr2", 100, 120), 0)
	expect.False(t, ok)
	_, ok = Union(iv("chr2", 150, 250), iv("chr2", 100, 120), 29)
	expect.False(t, ok)
	u, ok = Union(iv("chr2", 150, 250), iv("chr2", 100, 120), 30)
	expect.True(t, ok)
	expect.EQ(t, u, iv("chr2", 100, 250))

	_, ok = Union(iv("chr2", 100, 200), iv("chr2", 210, 250), 0)
	expect.False(t, ok)
	// Nearest-neighbour merge: the gap is exactly at the tolerance.
	u, ok = Union(iv("chr2", 100, 200), iv("chr2", 210, 250), 10)
	expect.True(t, ok)
	expect.EQ(t, u, iv("chr2", 100, 250))
	_, ok = Union(iv("chr2", 100, 200), iv("chr2", 210, 250), 9)
	expect.False(t, ok)

	_, ok = Union(iv("chr1", 100, 200), iv("chr2", 100, 200), 1000)
	expect.False(t, ok)
}

func TestIntersectAndFraction(t *testing.T) {
	x, ok := Intersect(iv("chr2", 100, 200), iv("chr2", 150, 250))
	expect.True(t, ok)
	expect.EQ(t, x, iv("chr2", 150, 200))
	_, ok = Intersect(iv("chr2", 100, 200), iv("chr2", 201, 250))
	expect.False(t, ok)

	// 51 shared bases, smaller interval has 101.
	expect.EQ(t, OverlapFraction(iv("chr2", 100, 200), iv("chr2", 150, 250)), 51.0/101.0)
	// Containment is a full overlap of the smaller interval.
	expect.EQ(t, OverlapFraction(iv("chr2", 100, 1000), iv("chr2", 180, 220)), 1.0)
	expect.EQ(t, OverlapFraction(iv("chr2", 100, 200), iv("chr2", 300, 400)), 0.0)
	expect.EQ(t, OverlapFraction(iv("chr2", 5, 5), iv("chr2", 5, 5)), 1.0)
}

func TestContains(t *testing.T) {
	expect.True(t, Contains(iv("chr1", 100, 250), iv("chr1", 150, 200), 0))
	expect.True(t, Contains(iv("chr1", 100, 250), iv("chr1", 100, 250), 0))
	expect.False(t, Contains(iv("chr1", 100, 250), iv("chr1", 90, 200), 0))
	expect.True(t, Contains(iv("chr1", 100, 250), iv("chr1", 90, 260), 10))
	expect.False(t, Contains(iv("chr1", 100, 250), iv("chr1", 89, 260), 10))
	expect.False(t, Contains(iv("chr1", 100, 250), iv("chr2", 150, 200), 0))
}

func TestMatchOptsValidate(t *testing.T) {
	tests := []struct {
		opts MatchOpts
		ok   bool
	}{
		{DefaultMatchOpts, true},
		{MatchOpts{MinOverlapFraction: 1}, true},
		{MatchOpts{MinOverlapFraction: 0.5, BoundaryTolerance: 100}, true},
		{MatchOpts{MinOverlapFraction: 0}, false},
		{MatchOpts{MinOverlapFraction: -0.1}, false},
		{MatchOpts{MinOverlapFraction: 1.0001}, false},
		{MatchOpts{MinOverlapFraction: math.NaN()}, false},
		{MatchOpts{MinOverlapFraction: 0.5, BoundaryTolerance: -1}, false},
	}
	for _, tt := range tests {
		err := tt.opts.Validate()
		if tt.ok {
			expect.NoError(t, err, "%+v", tt.opts)
			continue
		}
		assert.NotNil(t, err, "%+v", tt.opts)
		expect.True(t, errors.Is(errors.Precondition, err), "%v", err)
	}
}

func TestEligibleBoundaries(t *testing.T) {
	a, b := iv("chr2", 100, 200), iv("chr2", 150, 250)
	frac := OverlapFraction(a, b)

	// Fraction exactly at the threshold merges; just above it doesn't.
	expect.True(t, MatchOpts{MinOverlapFraction: frac}.Eligible(a, b))
	expect.False(t, MatchOpts{MinOverlapFraction: math.Nextafter(frac, 1)}.Eligible(a, b))
	expect.True(t, DefaultMatchOpts.Eligible(a, b))
	// Touching intervals overlap by a single base.
	expect.True(t, DefaultMatchOpts.Eligible(iv("chr2", 100, 200), iv("chr2", 200, 300)))

	// Tolerance exactly at the gap merges; one below doesn't.
	c, d := iv("chr2", 100, 200), iv("chr2", 205, 300)
	expect.True(t, MatchOpts{MinOverlapFraction: 1, BoundaryTolerance: 5}.Eligible(c, d))
	expect.False(t, MatchOpts{MinOverlapFraction: 1, BoundaryTolerance: 4}.Eligible(c, d))
	expect.False(t, DefaultMatchOpts.Eligible(c, d))
	// Adjacent intervals need a tolerance of one.
	expect.False(t, DefaultMatchOpts.Eligible(iv("chr2", 1, 10), iv("chr2", 11, 20)))
	expect.True(t, MatchOpts{MinOverlapFraction: AnyOverlap, BoundaryTolerance: 1}.Eligible(iv("chr2", 1, 10), iv("chr2", 11, 20)))

	// Tolerance does not rescue an overlap below the fraction threshold.
	expect.False(t, MatchOpts{MinOverlapFraction: 0.9, BoundaryTolerance: 1000}.Eligible(a, b))
	expect.False(t, MatchOpts{MinOverlapFraction: AnyOverlap, BoundaryTolerance: 1000}.Eligible(a, iv("chr3", 100, 200)))
}

func TestCompareChrom(t *testing.T) {
	ordered := []string{"chr1", "chr2", "chr10", "chr22", "chrX", "chrY", "chrM", "HLA-A", "chrUn_gl000220"}
	for i := range ordered {
		for j := range ordered {
			c := CompareChrom(ordered[i], ordered[j])
			switch {
			case i < j:
				expect.True(t, c < 0, "%s %s", ordered[i], ordered[j])
			case i > j:
				expect.True(t, c > 0, "%s %s", ordered[i], ordered[j])
			default:
				expect.EQ(t, c, 0)
			}
		}
	}
	expect.True(t, CompareChrom("1", "chr1") < 0)
	expect.True(t, CompareChrom("chr1", "1") > 0)
}
