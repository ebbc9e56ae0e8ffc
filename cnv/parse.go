package cnv

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/cnv/interval"
)

// RawRow is one row of the raw CNV table, before validation.  Every column is
// read as a string so that a malformed value is reported per row instead of
// aborting the read.
type RawRow struct {
	SampleID       string `tsv:"sample_id"`
	FamilyID       string `tsv:"family_id"`
	Chrom          string `tsv:"chromosome"`
	Start          string `tsv:"start"`
	End            string `tsv:"end"`
	CopyState      string `tsv:"copy_state"`
	AffectedStatus string `tsv:"affected_status"`
	Confidence     string `tsv:"confidence"`
	CopyNumber     string `tsv:"copy_number"`
	SentrixID      string `tsv:"sentrix_id"`
}

func parsePos(field, s string) (interval.PosType, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid coordinate %q", field, s)
	}
	return interval.PosType(v), nil
}

// ParseRow converts a RawRow into a validated Record.  line is recorded in
// the Record and in any error.  When copy_state is empty the state is derived
// from copy_number.
func ParseRow(row RawRow, line int) (Record, error) {
	r := Record{
		SampleID:   strings.TrimSpace(row.SampleID),
		FamilyID:   strings.TrimSpace(row.FamilyID),
		Chrom:      strings.TrimSpace(row.Chrom),
		SentrixID:  strings.TrimSpace(row.SentrixID),
		CopyNumber: -1,
		Line:       line,
	}
	var err error
	if strings.TrimSpace(row.Start) == "" {
		return r, newValidationError(r, "missing start")
	}
	if r.Start, err = parsePos("start", row.Start); err != nil {
		return r, newValidationError(r, err.Error())
	}
	if strings.TrimSpace(row.End) == "" {
		return r, newValidationError(r, "missing end")
	}
	if r.End, err = parsePos("end", row.End); err != nil {
		return r, newValidationError(r, err.Error())
	}
	if s := strings.TrimSpace(row.CopyNumber); s != "" {
		if r.CopyNumber, err = strconv.Atoi(s); err != nil {
			return r, newValidationError(r, fmt.Sprintf("invalid copy_number %q", row.CopyNumber))
		}
	}
	switch {
	case strings.TrimSpace(row.CopyState) != "":
		if r.State, err = ParseCopyState(row.CopyState); err != nil {
			return r, newValidationError(r, err.Error())
		}
		if r.CopyNumber >= 0 {
			if s, err := StateFromCopyNumber(r.CopyNumber); err != nil || s != r.State {
				return r, newValidationError(r, fmt.Sprintf("copy_number %d contradicts copy_state %v", r.CopyNumber, r.State))
			}
		}
	case r.CopyNumber >= 0:
		if r.State, err = StateFromCopyNumber(r.CopyNumber); err != nil {
			return r, newValidationError(r, err.Error())
		}
	}
	if r.Affected, err = ParseAffectedStatus(row.AffectedStatus); err != nil {
		return r, newValidationError(r, err.Error())
	}
	if s := strings.TrimSpace(row.Confidence); s != "" {
		if r.Confidence, err = strconv.ParseFloat(s, 64); err != nil || math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0) {
			return r, newValidationError(r, fmt.Sprintf("invalid confidence %q", row.Confidence))
		}
		r.HasConfidence = true
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

// FormatRow is the inverse of ParseRow.
func FormatRow(r Record) RawRow {
	row := RawRow{
		SampleID:       r.SampleID,
		FamilyID:       r.FamilyID,
		Chrom:          r.Chrom,
		Start:          strconv.FormatInt(int64(r.Start), 10),
		End:            strconv.FormatInt(int64(r.End), 10),
		CopyState:      r.State.String(),
		AffectedStatus: r.Affected.String(),
		SentrixID:      r.SentrixID,
	}
	if r.HasConfidence {
		row.Confidence = strconv.FormatFloat(r.Confidence, 'g', -1, 64)
	}
	if r.CopyNumber >= 0 {
		row.CopyNumber = strconv.Itoa(r.CopyNumber)
	}
	return row
}
