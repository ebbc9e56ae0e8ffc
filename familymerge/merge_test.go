package familymerge

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
	"github.com/stretchr/testify/require"
)

func call(family, sample, chrom string, start, end interval.PosType, state cnv.CopyState) cnv.Record {
	return cnv.Record{
		SampleID: sample, FamilyID: family, Chrom: chrom, Start: start, End: end,
		State: state, CopyNumber: -1,
	}
}

func scored(r cnv.Record, confidence float64) cnv.Record {
	r.Confidence, r.HasConfidence = confidence, true
	return r
}

func TestMergeExample(t *testing.T) {
	records := []cnv.Record{
		call("F1", "A", "chr2", 100, 200, cnv.Deletion),
		call("F1", "B", "chr2", 150, 250, cnv.Deletion),
		call("F1", "C", "chr2", 180, 220, cnv.Duplication),
	}
	merged, err := Merge(records, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	del, dup := merged[0], merged[1]
	expect.EQ(t, del.State, cnv.Deletion)
	expect.EQ(t, del.Interval(), interval.Interval{Chrom: "chr2", Start: 100, End: 250})
	expect.EQ(t, del.SourceSampleIDs, []string{"A", "B"})
	expect.EQ(t, del.Calls, 2)
	expect.EQ(t, dup.State, cnv.Duplication)
	expect.EQ(t, dup.Interval(), interval.Interval{Chrom: "chr2", Start: 180, End: 220})
	expect.EQ(t, dup.SourceSampleIDs, []string{"C"})
	for _, m := range merged {
		expect.NoError(t, m.Validate())
	}
}

func TestMergeRepresentative(t *testing.T) {
	a := scored(call("F1", "A", "chr1", 100, 200, cnv.Deletion), 0.2)
	a.Affected = cnv.Control
	b := scored(call("F1", "B", "chr1", 150, 300, cnv.Deletion), 0.9)
	b.Affected = cnv.Case
	b.CopyNumber = 1
	b.Line = 12
	c := call("F1", "C", "chr1", 290, 400, cnv.Deletion)
	merged, err := Merge([]cnv.Record{a, b, c}, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	m := merged[0]
	// The highest confidence call represents the cluster.
	expect.EQ(t, m.SampleID, "B")
	expect.EQ(t, m.Confidence, 0.9)
	expect.EQ(t, m.CopyNumber, 1)
	expect.EQ(t, m.Line, 0)
	expect.EQ(t, m.Interval(), interval.Interval{Chrom: "chr1", Start: 100, End: 400})
	expect.EQ(t, m.SourceSampleIDs, []string{"A", "B", "C"})
	expect.EQ(t, m.Cohort, cnv.CaseAndControl)
}

func TestMergeSameSampleTwice(t *testing.T) {
	merged, err := Merge([]cnv.Record{
		call("F1", "A", "chr1", 100, 200, cnv.Duplication),
		call("F1", "A", "chr1", 180, 260, cnv.Duplication),
	}, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	expect.EQ(t, merged[0].SourceSampleIDs, []string{"A"})
	expect.EQ(t, merged[0].Calls, 2)
}

func TestMergeKeepsFamiliesAndChromosomesApart(t *testing.T) {
	merged, err := Merge([]cnv.Record{
		call("F2", "X", "chr1", 100, 200, cnv.Deletion),
		call("F1", "A", "chr1", 100, 200, cnv.Deletion),
		call("F1", "B", "chr10", 100, 200, cnv.Deletion),
		call("F1", "C", "chr2", 100, 200, cnv.Deletion),
	}, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, Intervals(merged), []string{
		"F1|DELETION|chr10:100-200",
		"F1|DELETION|chr1:100-200",
		"F1|DELETION|chr2:100-200",
		"F2|DELETION|chr1:100-200",
	})
	// Canonical order: family, then natural chromosome order.
	var order []string
	for _, m := range merged {
		order = append(order, m.FamilyID+":"+m.Chrom)
	}
	expect.EQ(t, order, []string{"F1:chr1", "F1:chr2", "F1:chr10", "F2:chr1"})
}

func TestMergeSingleRecordFamily(t *testing.T) {
	merged, err := Merge([]cnv.Record{call("F9", "Z", "chrX", 5, 5, cnv.Duplication)}, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	expect.EQ(t, merged[0].SourceSampleIDs, []string{"Z"})

	merged, err = Merge(nil, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, len(merged), 0)
}

func TestMergeThresholds(t *testing.T) {
	a := call("F1", "A", "chr2", 100, 200, cnv.Deletion)
	b := call("F1", "B", "chr2", 150, 250, cnv.Deletion)
	frac := interval.OverlapFraction(a.Interval(), b.Interval())

	count := func(opts Opts, records ...cnv.Record) int {
		merged, err := Merge(records, opts)
		require.NoError(t, err)
		return len(merged)
	}
	opts := DefaultOpts
	opts.Match.MinOverlapFraction = frac
	expect.EQ(t, count(opts, a, b), 1)
	opts.Match.MinOverlapFraction = 0.6
	expect.EQ(t, count(opts, a, b), 2)

	// Disjoint calls 10 bases apart.
	c := call("F1", "C", "chr2", 210, 300, cnv.Deletion)
	opts = DefaultOpts
	expect.EQ(t, count(opts, a, c), 2)
	opts.Match.BoundaryTolerance = 10
	expect.EQ(t, count(opts, a, c), 1)
	opts.Match.BoundaryTolerance = 9
	expect.EQ(t, count(opts, a, c), 2)
}

func TestMergeFixpoint(t *testing.T) {
	// A chain of partial overlaps under a fraction threshold.
	opts := DefaultOpts
	opts.Match.MinOverlapFraction = 0.5
	records := []cnv.Record{
		call("F1", "A", "chr1", 1, 100, cnv.Deletion),
		call("F1", "B", "chr1", 80, 300, cnv.Deletion),
		call("F1", "C", "chr1", 90, 400, cnv.Deletion),
		call("F1", "D", "chr1", 95, 600, cnv.Deletion),
	}
	merged, err := Merge(records, opts)
	require.NoError(t, err)
	again, err := Merge(FromMerged(merged), opts)
	require.NoError(t, err)
	expect.EQ(t, Intervals(again), Intervals(merged))
}

func TestMergeRejects(t *testing.T) {
	bad := call("F1", "A", "chr1", 300, 200, cnv.Deletion)
	_, err := Merge([]cnv.Record{bad}, DefaultOpts)
	assert.NotNil(t, err)
	expect.True(t, cnv.IsValidation(err))
	expect.That(t, err.Error(), h.HasSubstr("sample=A"))

	noState := call("F1", "A", "chr1", 100, 200, cnv.UnknownState)
	_, err = Merge([]cnv.Record{noState}, DefaultOpts)
	expect.True(t, cnv.IsValidation(err))

	opts := DefaultOpts
	opts.Match.MinOverlapFraction = 1.5
	_, err = Merge([]cnv.Record{call("F1", "A", "chr1", 1, 2, cnv.Deletion)}, opts)
	expect.True(t, cnv.IsConfiguration(err))
	opts = DefaultOpts
	opts.Parallelism = -1
	_, err = Merge(nil, opts)
	expect.True(t, cnv.IsConfiguration(err))
}

// randomRecords generates calls of a few families on two chromosomes, with
// enough density that many overlap.
func randomRecords(r *rand.Rand, n int) []cnv.Record {
	states := []cnv.CopyState{cnv.Deletion, cnv.Duplication}
	chroms := []string{"chr1", "chr2"}
	records := make([]cnv.Record, n)
	for i := range records {
		family := fmt.Sprintf("F%d", r.Intn(3))
		start := interval.PosType(1 + r.Intn(2000))
		rec := call(family, fmt.Sprintf("%s-S%d", family, r.Intn(4)), chroms[r.Intn(2)],
			start, start+interval.PosType(r.Intn(200)), states[r.Intn(2)])
		if r.Intn(2) == 0 {
			rec = scored(rec, float64(r.Intn(10)))
		}
		rec.Line = i + 2
		records[i] = rec
	}
	return records
}

func TestMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for _, match := range []interval.MatchOpts{
		interval.DefaultMatchOpts,
		{MinOverlapFraction: 0.5, BoundaryTolerance: 0},
		{MinOverlapFraction: interval.AnyOverlap, BoundaryTolerance: 25},
		{MinOverlapFraction: 0.8, BoundaryTolerance: 5},
	} {
		opts := Opts{Match: match, Parallelism: 4}
		for iter := 0; iter < 20; iter++ {
			records := randomRecords(r, 60)
			merged, err := Merge(records, opts)
			require.NoError(t, err)

			// Order independence.
			shuffled := append([]cnv.Record(nil), records...)
			r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			sequential := opts
			sequential.Parallelism = 1
			other, err := Merge(shuffled, sequential)
			require.NoError(t, err)
			expect.EQ(t, other, merged, "%+v", match)

			// Idempotence.
			again, err := Merge(FromMerged(merged), opts)
			require.NoError(t, err)
			expect.EQ(t, Intervals(again), Intervals(merged), "%+v", match)

			// Every call is covered by exactly one merged record that lists its
			// sample, and merged records of a partition are pairwise
			// ineligible when adjacent in sorted order.
			for _, rec := range records {
				n := 0
				for _, m := range merged {
					if m.FamilyID == rec.FamilyID && m.State == rec.State &&
						interval.Contains(m.Interval(), rec.Interval(), 0) && m.HasSource(rec.SampleID) {
						n++
					}
				}
				expect.True(t, n >= 1, "%v not covered", rec)
			}
			if match == interval.DefaultMatchOpts {
				for i := range merged {
					for j := i + 1; j < len(merged); j++ {
						a, b := merged[i], merged[j]
						if a.FamilyID == b.FamilyID && a.State == b.State {
							expect.False(t, interval.Overlaps(a.Interval(), b.Interval()), "%v %v", a, b)
						}
					}
				}
			}
		}
	}
}

func TestMergeDoesNotModifyInput(t *testing.T) {
	records := []cnv.Record{
		call("F1", "B", "chr1", 150, 250, cnv.Deletion),
		call("F1", "A", "chr1", 100, 200, cnv.Deletion),
	}
	orig := append([]cnv.Record(nil), records...)
	_, err := Merge(records, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, records, orig)
}
