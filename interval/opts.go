package interval

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// AnyOverlap is the smallest MinOverlapFraction; with it, any shared base
// makes two overlapping intervals a match.
const AnyOverlap = math.SmallestNonzeroFloat64

// MatchOpts decides whether two calls describe the same variant.
type MatchOpts struct {
	// MinOverlapFraction is the minimum OverlapFraction for two overlapping
	// intervals to match.  Must be in (0, 1].
	MinOverlapFraction float64
	// BoundaryTolerance is the largest Distance at which two disjoint
	// intervals still match.  Zero requires an actual overlap.
	BoundaryTolerance PosType
}

// DefaultMatchOpts matches any two overlapping intervals, and never matches
// disjoint ones.
var DefaultMatchOpts = MatchOpts{
	MinOverlapFraction: AnyOverlap,
	BoundaryTolerance:  0,
}

// Validate returns an errors.Precondition error if opts is out of range.
func (o MatchOpts) Validate() error {
	if math.IsNaN(o.MinOverlapFraction) || o.MinOverlapFraction <= 0 || o.MinOverlapFraction > 1 {
		return errors.E(errors.Precondition,
			fmt.Sprintf("min overlap fraction must be in (0, 1], but found %v", o.MinOverlapFraction))
	}
	if o.BoundaryTolerance < 0 {
		return errors.E(errors.Precondition,
			fmt.Sprintf("boundary tolerance must be non-negative, but found %d", o.BoundaryTolerance))
	}
	return nil
}

// Eligible reports whether a and b should be merged into one call.
func (o MatchOpts) Eligible(a, b Interval) bool {
	if a.Chrom != b.Chrom {
		return false
	}
	if Overlaps(a, b) {
		return OverlapFraction(a, b) >= o.MinOverlapFraction
	}
	return Distance(a, b) <= int64(o.BoundaryTolerance)
}
