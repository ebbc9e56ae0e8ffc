package casecontrol

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cnv/cnv"
)

// DuplicateColumns is the header of the duplicates table.
var DuplicateColumns = []string{
	"reason", "family_id", "chromosome", "start", "end", "samples", "cohort",
	"raw_sample_id", "raw_start", "raw_end", "raw_copy_state", "raw_line",
	"merged_start", "merged_end", "merged_copy_state", "merged_source_sample_ids",
	"conflict_start", "conflict_end", "conflict_copy_state", "conflict_source_sample_ids",
	"unsupported_sample_id",
}

func writeOptMerged(w *tsv.Writer, m *cnv.MergedRecord) {
	if m == nil {
		for i := 0; i < 4; i++ {
			w.WriteString("")
		}
		return
	}
	w.WriteInt64(int64(m.Start))
	w.WriteInt64(int64(m.End))
	w.WriteString(m.State.String())
	w.WriteString(strings.Join(m.SourceSampleIDs, ","))
}

// WriteDuplicates writes one row per entry.
func WriteDuplicates(out io.Writer, entries []Entry) error {
	w := tsv.NewWriter(out)
	w.WriteString(strings.Join(DuplicateColumns, "\t"))
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, e := range entries {
		iv := e.Interval()
		w.WriteString(e.Reason.String())
		w.WriteString(e.FamilyID())
		w.WriteString(iv.Chrom)
		w.WriteInt64(int64(iv.Start))
		w.WriteInt64(int64(iv.End))
		w.WriteString(strings.Join(e.Samples(), ","))
		w.WriteString(e.Cohort.String())
		if r := e.Raw; r != nil {
			w.WriteString(r.SampleID)
			w.WriteInt64(int64(r.Start))
			w.WriteInt64(int64(r.End))
			w.WriteString(r.State.String())
			w.WriteString(strconv.Itoa(r.Line))
		} else {
			for i := 0; i < 5; i++ {
				w.WriteString("")
			}
		}
		writeOptMerged(w, e.Merged)
		writeOptMerged(w, e.Conflict)
		w.WriteString(e.Sample)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// SignificanceColumns is the header of the significance table.
var SignificanceColumns = []string{
	"family_id", "chromosome", "start", "end", "copy_state", "positive_cases",
	"negative_cases", "positive_controls", "negative_controls", "chi2", "p_value",
	"genes", "positive_sample_ids",
}

// WriteSignificance writes one row per association.
func WriteSignificance(out io.Writer, assoc []Association) error {
	w := tsv.NewWriter(out)
	w.WriteString(strings.Join(SignificanceColumns, "\t"))
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, a := range assoc {
		w.WriteString(a.Merged.FamilyID)
		w.WriteString(a.Merged.Chrom)
		w.WriteInt64(int64(a.Merged.Start))
		w.WriteInt64(int64(a.Merged.End))
		w.WriteString(a.Merged.State.String())
		w.WriteInt64(int64(a.PositiveCases))
		w.WriteInt64(int64(a.NegativeCases))
		w.WriteInt64(int64(a.PositiveControls))
		w.WriteInt64(int64(a.NegativeControls))
		w.WriteFloat64(a.ChiSquare, 'g', -1)
		w.WriteFloat64(a.P, 'g', -1)
		w.WriteString(strings.Join(a.Merged.Genes, ","))
		w.WriteString(strings.Join(a.Positive, ","))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeFile(ctx context.Context, path string, fn func(io.Writer) error) error {
	out, err := cnv.Create(ctx, path)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(fn(out))
	e.Set(out.Close())
	return e.Err()
}

// WriteDuplicatesFile writes the duplicates table to path.
func WriteDuplicatesFile(ctx context.Context, path string, entries []Entry) error {
	return writeFile(ctx, path, func(w io.Writer) error { return WriteDuplicates(w, entries) })
}

// WriteSignificanceFile writes the significance table to path.
func WriteSignificanceFile(ctx context.Context, path string, assoc []Association) error {
	return writeFile(ctx, path, func(w io.Writer) error { return WriteSignificance(w, assoc) })
}
