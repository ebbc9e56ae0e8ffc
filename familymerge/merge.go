// Package familymerge consolidates the CNV calls of each family.  Calls of
// one family on one chromosome with the same copy state are merged when they
// overlap (or lie within the boundary tolerance, see interval.MatchOpts); the
// result is one cnv.MergedRecord per cluster of calls.  Calls of different
// states are never merged, even when they cover the same bases.
package familymerge

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
)

// partitionKey identifies the calls that may be merged with each other.
type partitionKey struct {
	family string
	chrom  string
	state  cnv.CopyState
}

func (k partitionKey) less(o partitionKey) bool {
	if k.family != o.family {
		return k.family < o.family
	}
	if c := interval.CompareChrom(k.chrom, o.chrom); c != 0 {
		return c < 0
	}
	return k.state < o.state
}

type partition struct {
	key     partitionKey
	records []cnv.Record
	merged  []cnv.MergedRecord
}

// cluster is a set of calls being merged.
type cluster struct {
	iv      interval.Interval
	rep     cnv.Record
	samples map[string]struct{}
	cohort  cnv.Cohort
	calls   int
}

func newCluster(r cnv.Record) *cluster {
	return &cluster{
		iv:      r.Interval(),
		rep:     r,
		samples: map[string]struct{}{r.SampleID: {}},
		cohort:  cnv.UnknownCohort.Add(r.Affected),
		calls:   1,
	}
}

// absorb merges o into c.
func (c *cluster) absorb(o *cluster) {
	c.iv = interval.Span(c.iv, o.iv)
	if cnv.BetterRepresentative(o.rep, c.rep) {
		c.rep = o.rep
	}
	for s := range o.samples {
		c.samples[s] = struct{}{}
	}
	c.cohort = c.cohort.Merge(o.cohort)
	c.calls += o.calls
}

func (c *cluster) mergedRecord() cnv.MergedRecord {
	m := cnv.MergedRecord{
		Record:          c.rep,
		SourceSampleIDs: make([]string, 0, len(c.samples)),
		Cohort:          c.cohort,
		Calls:           c.calls,
	}
	m.Start, m.End = c.iv.Start, c.iv.End
	m.Line = 0
	for s := range c.samples {
		m.SourceSampleIDs = append(m.SourceSampleIDs, s)
	}
	sort.Strings(m.SourceSampleIDs)
	return m
}

// sweep merges clusters, which must be sorted by start ascending and end
// descending, left to right.  Each cluster is compared against the union
// interval of the cluster being built.  It returns the merged clusters, in the
// same order.
func sweep(clusters []*cluster, opts interval.MatchOpts) []*cluster {
	var out []*cluster
	for _, c := range clusters {
		if n := len(out); n > 0 && opts.Eligible(out[n-1].iv, c.iv) {
			out[n-1].absorb(c)
			continue
		}
		out = append(out, c)
	}
	return out
}

// sortClusters sorts by start ascending, end descending.
func sortClusters(clusters []*cluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i].iv, clusters[j].iv
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End > b.End
	})
}

// mergePartition merges the calls of one (family, chromosome, state)
// partition.  The sweep is repeated over the cluster intervals until it
// merges nothing, so that the result is stable under re-merging.
func mergePartition(records []cnv.Record, opts interval.MatchOpts) []cnv.MergedRecord {
	cnv.SortRecords(records)
	clusters := make([]*cluster, len(records))
	for i, r := range records {
		clusters[i] = newCluster(r)
	}
	clusters = sweep(clusters, opts)
	for {
		n := len(clusters)
		sortClusters(clusters)
		if clusters = sweep(clusters, opts); len(clusters) == n {
			break
		}
	}
	merged := make([]cnv.MergedRecord, len(clusters))
	for i, c := range clusters {
		merged[i] = c.mergedRecord()
	}
	return merged
}

// Merge consolidates records family by family.  Records are validated first;
// an invalid record aborts the merge with an errors.Invalid error, and
// invalid options with an errors.Precondition error.  The result is sorted by
// cnv.LessMerged and does not depend on the order of records.  records is not
// modified.
func Merge(records []cnv.Record, opts Opts) ([]cnv.MergedRecord, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	byKey := map[partitionKey]*partition{}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		k := partitionKey{family: r.FamilyID, chrom: r.Chrom, state: r.State}
		p, ok := byKey[k]
		if !ok {
			p = &partition{key: k}
			byKey[k] = p
		}
		p.records = append(p.records, r)
	}
	parts := make([]*partition, 0, len(byKey))
	for _, p := range byKey {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].key.less(parts[j].key) })

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	err := traverse.Limit(parallelism).Each(len(parts), func(i int) error {
		p := parts[i]
		p.merged = mergePartition(p.records, opts.Match)
		log.Debug.Printf("merge: family %s %s %v: %d calls -> %d records",
			p.key.family, p.key.chrom, p.key.state, len(p.records), len(p.merged))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		merged []cnv.MergedRecord
		multi  int
	)
	for _, p := range parts {
		for _, m := range p.merged {
			if len(m.SourceSampleIDs) > 1 {
				multi++
			}
		}
		merged = append(merged, p.merged...)
	}
	cnv.SortMerged(merged)
	log.Printf("Stats: merge: %d calls, %d partitions, %d merged records, %d with multiple samples",
		len(records), len(parts), len(merged), multi)
	return merged, nil
}

// FromMerged turns each merged record into a single-sample call covering its
// union interval.  Merging the result again with the same options leaves
// every interval unchanged.
func FromMerged(merged []cnv.MergedRecord) []cnv.Record {
	records := make([]cnv.Record, len(merged))
	for i, m := range merged {
		records[i] = m.Record
	}
	return records
}

// Intervals describes every merged record by family, state and union
// interval, sorted.  Two merges that chose different representatives compare
// equal under it.
func Intervals(merged []cnv.MergedRecord) []string {
	out := make([]string, len(merged))
	for i, m := range merged {
		out[i] = m.FamilyID + "|" + m.State.String() + "|" + m.Interval().String()
	}
	sort.Strings(out)
	return out
}
