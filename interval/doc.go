// Package interval implements the genomic-interval primitives shared by the
// CNV merge engine, the duplicate detector and the relation graph builder.
//
// Coordinates are 1-based and closed: [Start, End] covers End-Start+1 bases,
// and two intervals that share a single base (a.End == b.Start) overlap.
//
// Whether two calls describe the same variant is decided by MatchOpts:
//   - overlapping intervals match iff OverlapFraction >= MinOverlapFraction,
//     where the fraction is the intersection size divided by the size of the
//     smaller interval;
//   - disjoint intervals match iff Distance <= BoundaryTolerance, where
//     Distance is the gap between the nearer boundaries (adjacent intervals
//     [1,10] and [11,20] have distance 1).
//
// DefaultMatchOpts treats any shared base as a match and allows no slack for
// disjoint intervals.
//
// Index provides overlap queries over a set of intervals, one interval tree
// per chromosome.
package interval
