package cnv

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/grailbio/cnv/interval"
)

// CopyState is the copy-number class of a call.
type CopyState uint8

const (
	// UnknownState is the zero value; it is never valid on a Record.
	UnknownState CopyState = iota
	// Deletion is a loss of copies (copy number < 2).
	Deletion
	// Duplication is a gain of copies (copy number > 2).
	Duplication
)

func (s CopyState) String() string {
	switch s {
	case Deletion:
		return "DELETION"
	case Duplication:
		return "DUPLICATION"
	}
	return "UNKNOWN"
}

// ParseCopyState parses a copy state.  Besides the canonical names it
// accepts the usual abbreviations (DEL/DUP, LOSS/GAIN).
func ParseCopyState(s string) (CopyState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DELETION", "DEL", "LOSS":
		return Deletion, nil
	case "DUPLICATION", "DUP", "GAIN":
		return Duplication, nil
	}
	return UnknownState, fmt.Errorf("unknown copy state %q", s)
}

// StateFromCopyNumber maps an integer copy number onto a CopyState.  Copy
// number 2 is the diploid reference state and is not a CNV.
func StateFromCopyNumber(cn int) (CopyState, error) {
	switch {
	case cn < 0:
		return UnknownState, fmt.Errorf("negative copy number %d", cn)
	case cn < 2:
		return Deletion, nil
	case cn > 2:
		return Duplication, nil
	}
	return UnknownState, fmt.Errorf("copy number %d is not a copy number variant", cn)
}

// AffectedStatus is the cohort membership of a sample.
type AffectedStatus uint8

const (
	// Unknown means the phenotype of the sample is not known.
	Unknown AffectedStatus = iota
	// Case is an affected sample.
	Case
	// Control is an unaffected sample.
	Control
)

func (a AffectedStatus) String() string {
	switch a {
	case Case:
		return "CASE"
	case Control:
		return "CONTROL"
	}
	return "UNKNOWN"
}

// ParseAffectedStatus parses an affected status.  Besides CASE, CONTROL and
// UNKNOWN it accepts the pedigree-sheet spellings Yes/No and the PLINK codes
// 2 (affected), 1 (unaffected), 0 and -9 (missing).  An empty value is
// Unknown.
func ParseAffectedStatus(s string) (AffectedStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASE", "YES", "Y", "AFFECTED", "2":
		return Case, nil
	case "CONTROL", "NO", "N", "UNAFFECTED", "1":
		return Control, nil
	case "UNKNOWN", "", "NA", "0", "-9":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown affected status %q", s)
}

// Record is one CNV call of one sample.  Records are values; nothing in this
// repository modifies a Record after it has been parsed.
type Record struct {
	SampleID string
	FamilyID string
	Chrom    string
	// Start and End are 1-based, closed.
	Start interval.PosType
	End   interval.PosType
	State CopyState
	// Affected is the cohort membership of SampleID.
	Affected AffectedStatus
	// Confidence is the caller's quality score.  It is meaningful only if
	// HasConfidence is set.
	Confidence    float64
	HasConfidence bool
	// CopyNumber is the integer copy number, or -1 if the input didn't
	// provide one.
	CopyNumber int
	// SentrixID identifies the genotyping array the call came from.  It may be
	// empty.
	SentrixID string
	// Line is the 1-based line of the input the record was parsed from, or 0
	// for records built in memory.
	Line int
}

// Interval returns the genomic interval of the call.
func (r Record) Interval() interval.Interval {
	return interval.Interval{Chrom: r.Chrom, Start: r.Start, End: r.End}
}

// Validate checks the Record invariants.  The error, if any, is of kind
// errors.Invalid.
func (r Record) Validate() error {
	switch {
	case r.SampleID == "":
		return newValidationError(r, "missing sample_id")
	case r.FamilyID == "":
		return newValidationError(r, "missing family_id")
	case r.Chrom == "":
		return newValidationError(r, "missing chromosome")
	case r.Start < 1:
		return newValidationError(r, fmt.Sprintf("start %d must be >= 1", r.Start))
	case r.Start > r.End:
		return newValidationError(r, fmt.Sprintf("start %d > end %d", r.Start, r.End))
	case r.State != Deletion && r.State != Duplication:
		return newValidationError(r, "missing copy state")
	}
	return nil
}

// String describes the record by its identifying fields, for error messages
// and logs.
func (r Record) String() string {
	return fmt.Sprintf("family=%s sample=%s %s:%d-%d %v", r.FamilyID, r.SampleID, r.Chrom, r.Start, r.End, r.State)
}

// Less orders records canonically: family, chromosome, start, end descending,
// state, sample, confidence descending, then the remaining fields and
// finally the input line.
func Less(a, b Record) bool {
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
	if a.SampleID != b.SampleID {
		return a.SampleID < b.SampleID
	}
	if ca, cb := confidenceKey(a), confidenceKey(b); ca != cb {
		return ca > cb
	}
	if a.Affected != b.Affected {
		return a.Affected < b.Affected
	}
	if a.CopyNumber != b.CopyNumber {
		return a.CopyNumber < b.CopyNumber
	}
	if a.SentrixID != b.SentrixID {
		return a.SentrixID < b.SentrixID
	}
	return a.Line < b.Line
}

// confidenceKey sorts records without a confidence after every scored one.
func confidenceKey(r Record) float64 {
	if !r.HasConfidence {
		return math.Inf(-1)
	}
	return r.Confidence
}

// BetterRepresentative reports whether a should represent a cluster in place
// of b: the higher confidence wins, then the canonical order.
func BetterRepresentative(a, b Record) bool {
	if ca, cb := confidenceKey(a), confidenceKey(b); ca != cb {
		return ca > cb
	}
	return Less(a, b)
}

// SortRecords sorts records in canonical order (see Less).
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return Less(records[i], records[j]) })
}
