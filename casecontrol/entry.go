package casecontrol

import (
	"fmt"
	"strings"

	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
)

// Reason classifies a discrepancy between the merged and the raw table.
type Reason uint8

const (
	// BoundaryMismatch means a raw call and the merged record that lists its
	// sample disagree on the extent of the variant by more than the boundary
	// tolerance.
	BoundaryMismatch Reason = iota
	// MissingInMerged means a raw call is not represented by any merged
	// record of the same state.
	MissingInMerged
	// MissingInRaw means a source sample of a merged record has no raw call
	// backing it.
	MissingInRaw
	// StateMismatch means a deletion and a duplication of one family overlap.
	StateMismatch

	numReasons
)

func (r Reason) String() string {
	switch r {
	case BoundaryMismatch:
		return "BOUNDARY_MISMATCH"
	case MissingInMerged:
		return "MISSING_IN_MERGED"
	case MissingInRaw:
		return "MISSING_IN_RAW"
	case StateMismatch:
		return "STATE_MISMATCH"
	}
	return fmt.Sprintf("Reason(%d)", r)
}

// Entry is one discrepancy.  Which of the record fields are set depends on
// the reason:
//
//	BoundaryMismatch  Merged, and Raw if the raw call sticks out of Merged
//	MissingInMerged   Raw, and Merged if a same-state record overlaps Raw
//	MissingInRaw      Merged and Sample
//	StateMismatch     Conflict, and Merged or Raw
type Entry struct {
	Reason Reason
	Raw    *cnv.Record
	Merged *cnv.MergedRecord
	// Conflict is the record of the other copy state, for StateMismatch.
	Conflict *cnv.MergedRecord
	// Sample is the source sample lacking raw support, for MissingInRaw.
	Sample string
	// Cohort is the cohort of every sample involved.
	Cohort cnv.Cohort
}

// FamilyID returns the family of the entry.
func (e Entry) FamilyID() string {
	if e.Merged != nil {
		return e.Merged.FamilyID
	}
	if e.Raw != nil {
		return e.Raw.FamilyID
	}
	return e.Conflict.FamilyID
}

// Interval returns the interval the entry is about: the merged record's, or
// the raw call's if there is no merged record.
func (e Entry) Interval() interval.Interval {
	if e.Merged != nil {
		return e.Merged.Interval()
	}
	if e.Raw != nil {
		return e.Raw.Interval()
	}
	return e.Conflict.Interval()
}

// Samples lists the samples involved in the entry, sorted, without
// duplicates.
func (e Entry) Samples() []string {
	var ids []string
	if e.Raw != nil {
		ids = append(ids, e.Raw.SampleID)
	}
	if e.Merged != nil {
		ids = append(ids, e.Merged.SourceSampleIDs...)
	}
	if e.Conflict != nil {
		ids = append(ids, e.Conflict.SourceSampleIDs...)
	}
	if e.Sample != "" {
		ids = append(ids, e.Sample)
	}
	return uniqueSorted(ids)
}

func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v family=%s %v", e.Reason, e.FamilyID(), e.Interval())
	if e.Raw != nil {
		fmt.Fprintf(&b, " raw=[%v]", *e.Raw)
	}
	if e.Merged != nil {
		fmt.Fprintf(&b, " merged=[%v]", *e.Merged)
	}
	if e.Conflict != nil {
		fmt.Fprintf(&b, " conflict=[%v]", *e.Conflict)
	}
	if e.Sample != "" {
		fmt.Fprintf(&b, " sample=%s", e.Sample)
	}
	return b.String()
}

func optInterval(m *cnv.MergedRecord) interval.Interval {
	if m == nil {
		return interval.Interval{}
	}
	return m.Interval()
}

// lessEntry orders entries by family, interval, reason, then the remaining
// fields.
func lessEntry(a, b Entry) bool {
	if fa, fb := a.FamilyID(), b.FamilyID(); fa != fb {
		return fa < fb
	}
	if c := interval.Compare(a.Interval(), b.Interval()); c != 0 {
		return c < 0
	}
	if a.Reason != b.Reason {
		return a.Reason < b.Reason
	}
	if sa, sb := strings.Join(a.Samples(), ","), strings.Join(b.Samples(), ","); sa != sb {
		return sa < sb
	}
	if c := interval.Compare(optInterval(a.Conflict), optInterval(b.Conflict)); c != 0 {
		return c < 0
	}
	if (a.Raw == nil) != (b.Raw == nil) {
		return a.Raw == nil
	}
	if a.Raw != nil && *a.Raw != *b.Raw {
		return cnv.Less(*a.Raw, *b.Raw)
	}
	if (a.Merged == nil) != (b.Merged == nil) {
		return a.Merged == nil
	}
	return a.Sample < b.Sample
}
