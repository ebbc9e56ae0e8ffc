package cnv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/cnv/interval"
)

// Cohort summarizes which cohorts a set of samples belongs to.
type Cohort uint8

const (
	// UnknownCohort means none of the samples has a known affected status.
	UnknownCohort Cohort = iota
	// CaseOnly means every sample with a known status is a case.
	CaseOnly
	// ControlOnly means every sample with a known status is a control.
	ControlOnly
	// CaseAndControl means the samples include both cases and controls.
	CaseAndControl
)

func (c Cohort) String() string {
	switch c {
	case CaseOnly:
		return "CASE_ONLY"
	case ControlOnly:
		return "CONTROL_ONLY"
	case CaseAndControl:
		return "CASE_AND_CONTROL"
	}
	return "UNKNOWN"
}

// ParseCohort is the inverse of Cohort.String.
func ParseCohort(s string) (Cohort, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASE_ONLY":
		return CaseOnly, nil
	case "CONTROL_ONLY":
		return ControlOnly, nil
	case "CASE_AND_CONTROL":
		return CaseAndControl, nil
	case "UNKNOWN", "":
		return UnknownCohort, nil
	}
	return UnknownCohort, fmt.Errorf("unknown cohort %q", s)
}

// Add returns the cohort of the samples in c plus a sample of status a.
func (c Cohort) Add(a AffectedStatus) Cohort {
	switch a {
	case Case:
		if c == ControlOnly || c == CaseAndControl {
			return CaseAndControl
		}
		return CaseOnly
	case Control:
		if c == CaseOnly || c == CaseAndControl {
			return CaseAndControl
		}
		return ControlOnly
	}
	return c
}

// Merge returns the cohort of the union of two sample sets.
func (c Cohort) Merge(other Cohort) Cohort {
	switch other {
	case CaseOnly:
		return c.Add(Case)
	case ControlOnly:
		return c.Add(Control)
	case CaseAndControl:
		return CaseAndControl
	}
	return c
}

// MergedRecord is one consolidated call of a family: the union of the
// overlapping same-state calls of one or more of its samples.  The embedded
// Record is the representative call (the one with the highest confidence),
// with its coordinates replaced by the union interval.  A MergedRecord is
// created by the merge engine and never modified afterwards.
type MergedRecord struct {
	Record
	// SourceSampleIDs lists the samples whose calls were merged, sorted and
	// without duplicates.  Never empty.
	SourceSampleIDs []string
	// Cohort is the cohort of the source samples.
	Cohort Cohort
	// Calls is the number of raw calls merged into the record.
	Calls int
	// Genes lists the genes overlapping the record, if it has been annotated.
	Genes []string
}

// Interval returns the union interval of the merged record.
func (m MergedRecord) Interval() interval.Interval { return m.Record.Interval() }

// HasSource reports whether sampleID is one of the source samples.
func (m MergedRecord) HasSource(sampleID string) bool {
	i := sort.SearchStrings(m.SourceSampleIDs, sampleID)
	return i < len(m.SourceSampleIDs) && m.SourceSampleIDs[i] == sampleID
}

// Validate checks the MergedRecord invariants.
func (m MergedRecord) Validate() error {
	if err := m.Record.Validate(); err != nil {
		return err
	}
	if len(m.SourceSampleIDs) == 0 {
		return newValidationError(m.Record, "merged record without source samples")
	}
	for i, id := range m.SourceSampleIDs {
		if id == "" {
			return newValidationError(m.Record, "empty source sample id")
		}
		if i > 0 && m.SourceSampleIDs[i-1] >= id {
			return newValidationError(m.Record, "source sample ids must be sorted and unique")
		}
	}
	return nil
}

// Key returns a string that identifies the merged record within one run.
func (m MergedRecord) Key() string {
	return fmt.Sprintf("%s|%s:%d-%d|%v|%s", m.FamilyID, m.Chrom, m.Start, m.End, m.State,
		strings.Join(m.SourceSampleIDs, ","))
}

// String describes the merged record for error messages and logs.
func (m MergedRecord) String() string {
	return fmt.Sprintf("family=%s samples=%s %s:%d-%d %v", m.FamilyID,
		strings.Join(m.SourceSampleIDs, ","), m.Chrom, m.Start, m.End, m.State)
}

// LessMerged orders merged records canonically: family, chromosome, start,
// end descending, state, source samples.
func LessMerged(a, b MergedRecord) bool {
	if a.FamilyID != b.FamilyID {
		return a.FamilyID < b.FamilyID
	}
	if c := interval.CompareChrom(a.Chrom, b.Chrom); c != 0 {
		return c < 0
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.End != b.End {
		return a.End > b.End
	}
	if a.State != b.State {
		return a.State < b.State
	}
	return strings.Join(a.SourceSampleIDs, ",") < strings.Join(b.SourceSampleIDs, ",")
}

// SortMerged sorts merged records in canonical order.
func SortMerged(merged []MergedRecord) {
	sort.SliceStable(merged, func(i, j int) bool { return LessMerged(merged[i], merged[j]) })
}
