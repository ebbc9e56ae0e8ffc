// Package casecontrol checks a merged CNV table against the raw calls it was
// built from.  Detect reports every raw call the merged table misrepresents,
// every merged record the raw calls don't support, and every locus where a
// family carries both a deletion and a duplication.  Significance tests each
// merged record for association with the affected status.
package casecontrol

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
)

// Opts configures Detect.
type Opts struct {
	// BoundaryTolerance is the number of bases a merged record and the raw
	// calls behind it may disagree by.
	BoundaryTolerance interval.PosType
}

// DefaultOpts requires merged records to match the extent of their calls
// exactly.
var DefaultOpts = Opts{BoundaryTolerance: 0}

// Validate checks the options.
func (o Opts) Validate() error {
	return interval.MatchOpts{MinOverlapFraction: 1, BoundaryTolerance: o.BoundaryTolerance}.Validate()
}

// Stats summarizes one Detect run.
type Stats struct {
	Raw    int
	Merged int
	Clean  int
	// Entries counts the entries of each reason.
	Entries [numReasons]int
}

func (s Stats) String() string {
	str := fmt.Sprintf("%d raw calls, %d merged records, %d clean", s.Raw, s.Merged, s.Clean)
	for r := Reason(0); r < numReasons; r++ {
		str += fmt.Sprintf(", %v=%d", r, s.Entries[r])
	}
	return str
}

// Result is the outcome of Detect.
type Result struct {
	// Clean holds the merged records no entry refers to, in canonical order.
	Clean []cnv.MergedRecord
	// Duplicates holds the entries, sorted by family, interval and reason.
	Duplicates []Entry
	Stats      Stats
}

func uniqueSorted(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

type detector struct {
	opts    Opts
	raw     []cnv.Record
	merged  []cnv.MergedRecord
	samples cnv.Samples
	// byFamily indexes merged records (positions in merged) by family.
	byFamily map[string]*interval.Index
	// bySample indexes raw calls (positions in raw) by sample.
	bySample map[string]*interval.Index
	entries  []Entry
}

func (d *detector) cohort(ids ...string) cnv.Cohort { return d.samples.Cohort(ids) }

func (d *detector) add(e Entry) { d.entries = append(d.entries, e) }

// checkIntegrity verifies that every source sample of every merged record
// exists in the raw table, in the same family.
func (d *detector) checkIntegrity() error {
	for _, m := range d.merged {
		for _, id := range m.SourceSampleIDs {
			s, ok := d.samples[id]
			if !ok {
				return cnv.IntegrityError(m, fmt.Sprintf("source sample %s is absent from the raw table", id))
			}
			if s.FamilyID != m.FamilyID {
				return cnv.IntegrityError(m, fmt.Sprintf("source sample %s belongs to family %s", id, s.FamilyID))
			}
		}
	}
	return nil
}

func (d *detector) buildIndexes() (err error) {
	d.byFamily, err = indexBy(len(d.merged), func(i int) (string, interval.Interval) {
		return d.merged[i].FamilyID, d.merged[i].Interval()
	})
	if err != nil {
		return err
	}
	d.bySample, err = indexBy(len(d.raw), func(i int) (string, interval.Interval) {
		return d.raw[i].SampleID, d.raw[i].Interval()
	})
	return err
}

// overlappingMerged returns the merged records of family overlapping iv.
func (d *detector) overlappingMerged(family string, iv interval.Interval) []int {
	x, ok := d.byFamily[family]
	if !ok {
		return nil
	}
	return x.Overlapping(iv)
}

// checkRaw classifies every raw call against the merged records of its
// family.
func (d *detector) checkRaw() {
	tol := d.opts.BoundaryTolerance
	for i := range d.raw {
		r := &d.raw[i]
		iv := r.Interval()
		var same, listing, other []int
		for _, j := range d.overlappingMerged(r.FamilyID, iv) {
			m := &d.merged[j]
			if m.State != r.State {
				other = append(other, j)
				continue
			}
			same = append(same, j)
			if m.HasSource(r.SampleID) {
				listing = append(listing, j)
			}
		}
		switch {
		case len(same) == 0:
			d.add(Entry{Reason: MissingInMerged, Raw: r, Cohort: d.cohort(r.SampleID)})
			// The call conflicts with every overlapping record of the other
			// state.  Conflicts between merged records are found by
			// checkStates.
			for _, j := range other {
				m := &d.merged[j]
				d.add(Entry{Reason: StateMismatch, Raw: r, Conflict: m,
					Cohort: d.cohort(append([]string{r.SampleID}, m.SourceSampleIDs...)...)})
			}
		case len(listing) == 0:
			m := &d.merged[d.largestOverlap(same, iv)]
			d.add(Entry{Reason: MissingInMerged, Raw: r, Merged: m, Cohort: d.cohort(r.SampleID)})
		default:
			contained := false
			for _, j := range listing {
				if interval.Contains(d.merged[j].Interval(), iv, tol) {
					contained = true
					break
				}
			}
			if !contained {
				m := &d.merged[d.largestOverlap(listing, iv)]
				d.add(Entry{Reason: BoundaryMismatch, Raw: r, Merged: m, Cohort: d.cohort(m.SourceSampleIDs...)})
			}
		}
	}
}

// largestOverlap returns the candidate sharing the most bases with iv; ties
// go to the earliest in canonical order.
func (d *detector) largestOverlap(candidates []int, iv interval.Interval) int {
	best, bestLen := -1, int64(-1)
	for _, j := range candidates {
		x, _ := interval.Intersect(d.merged[j].Interval(), iv)
		if n := x.Len(); n > bestLen || (n == bestLen && j < best) {
			best, bestLen = j, n
		}
	}
	return best
}

// checkStates reports every pair of overlapping merged records of one family
// with different states, once.
func (d *detector) checkStates() {
	for i := range d.merged {
		m := &d.merged[i]
		for _, j := range d.overlappingMerged(m.FamilyID, m.Interval()) {
			if j <= i || d.merged[j].State == m.State {
				continue
			}
			o := &d.merged[j]
			d.add(Entry{Reason: StateMismatch, Merged: m, Conflict: o,
				Cohort: d.cohort(m.SourceSampleIDs...).Merge(d.cohort(o.SourceSampleIDs...))})
		}
	}
}

// checkMerged verifies that every source sample of every merged record has a
// raw call behind it, and that the record does not extend beyond its calls.
func (d *detector) checkMerged() {
	tol := d.opts.BoundaryTolerance
	for i := range d.merged {
		m := &d.merged[i]
		iv := m.Interval()
		var (
			support   interval.Interval
			supported bool
		)
		for _, id := range m.SourceSampleIDs {
			found := false
			if x, ok := d.bySample[id]; ok {
				for _, k := range x.Overlapping(iv) {
					r := d.raw[k]
					if r.FamilyID != m.FamilyID || r.State != m.State {
						continue
					}
					found = true
					if !supported {
						support, supported = r.Interval(), true
					} else {
						support = interval.Span(support, r.Interval())
					}
				}
			}
			if !found {
				d.add(Entry{Reason: MissingInRaw, Merged: m, Sample: id, Cohort: d.cohort(id)})
			}
		}
		if supported && !interval.Contains(support, iv, tol) {
			d.add(Entry{Reason: BoundaryMismatch, Merged: m, Cohort: d.cohort(m.SourceSampleIDs...)})
		}
	}
}

// Detect compares the merged table against the raw calls.  Invalid records
// yield an errors.Invalid error, invalid options an errors.Precondition
// error, and a merged record whose source sample is missing from the raw
// table (or listed there under another family) an errors.Integrity error.
// Neither input is modified.
func Detect(merged []cnv.MergedRecord, raw []cnv.Record, opts Opts) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	d := &detector{
		opts:   opts,
		raw:    append([]cnv.Record(nil), raw...),
		merged: append([]cnv.MergedRecord(nil), merged...),
	}
	for _, r := range d.raw {
		if err := r.Validate(); err != nil {
			return Result{}, err
		}
	}
	for _, m := range d.merged {
		if err := m.Validate(); err != nil {
			return Result{}, err
		}
	}
	cnv.SortRecords(d.raw)
	cnv.SortMerged(d.merged)

	var err error
	if d.samples, err = cnv.NewSamples(d.raw); err != nil {
		return Result{}, err
	}
	if err := d.checkIntegrity(); err != nil {
		return Result{}, err
	}
	if err := d.buildIndexes(); err != nil {
		return Result{}, err
	}
	d.checkRaw()
	d.checkStates()
	d.checkMerged()

	sort.SliceStable(d.entries, func(i, j int) bool { return lessEntry(d.entries[i], d.entries[j]) })
	flagged := map[*cnv.MergedRecord]bool{}
	res := Result{Duplicates: d.entries}
	for _, e := range d.entries {
		if e.Merged != nil {
			flagged[e.Merged] = true
		}
		if e.Conflict != nil {
			flagged[e.Conflict] = true
		}
		res.Stats.Entries[e.Reason]++
	}
	for i := range d.merged {
		if !flagged[&d.merged[i]] {
			res.Clean = append(res.Clean, d.merged[i])
		}
	}
	res.Stats.Raw, res.Stats.Merged, res.Stats.Clean = len(d.raw), len(d.merged), len(res.Clean)
	log.Printf("Stats: case-control: %v", res.Stats)
	return res, nil
}
