package cnv

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// MergedColumns is the header of the merged table.
var MergedColumns = []string{
	"family_id", "chromosome", "start", "end", "copy_state", "copy_number",
	"confidence", "sample_id", "affected_status", "sentrix_id",
	"source_sample_ids", "cohort", "calls", "genes",
}

type mergedRow struct {
	FamilyID        string `tsv:"family_id"`
	Chrom           string `tsv:"chromosome"`
	Start           string `tsv:"start"`
	End             string `tsv:"end"`
	CopyState       string `tsv:"copy_state"`
	CopyNumber      string `tsv:"copy_number"`
	Confidence      string `tsv:"confidence"`
	SampleID        string `tsv:"sample_id"`
	AffectedStatus  string `tsv:"affected_status"`
	SentrixID       string `tsv:"sentrix_id"`
	SourceSampleIDs string `tsv:"source_sample_ids"`
	Cohort          string `tsv:"cohort"`
	Calls           string `tsv:"calls"`
	Genes           string `tsv:"genes"`
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parseMergedRow converts one row of a merged table.  Tables written by other
// tools may lack the source_sample_ids column; the representative sample is
// then the only source.
func parseMergedRow(row mergedRow, line int) (MergedRecord, error) {
	rec, err := ParseRow(RawRow{
		SampleID:       row.SampleID,
		FamilyID:       row.FamilyID,
		Chrom:          row.Chrom,
		Start:          row.Start,
		End:            row.End,
		CopyState:      row.CopyState,
		AffectedStatus: row.AffectedStatus,
		Confidence:     row.Confidence,
		CopyNumber:     row.CopyNumber,
		SentrixID:      row.SentrixID,
	}, line)
	if err != nil {
		return MergedRecord{}, err
	}
	m := MergedRecord{Record: rec}
	ids := splitList(row.SourceSampleIDs)
	if len(ids) == 0 {
		ids = []string{rec.SampleID}
	}
	sort.Strings(ids)
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			m.SourceSampleIDs = append(m.SourceSampleIDs, id)
		}
	}
	if m.Cohort, err = ParseCohort(row.Cohort); err != nil {
		return m, newValidationError(rec, err.Error())
	}
	if m.Cohort == UnknownCohort {
		m.Cohort = m.Cohort.Add(rec.Affected)
	}
	m.Calls = len(m.SourceSampleIDs)
	if s := strings.TrimSpace(row.Calls); s != "" {
		if m.Calls, err = strconv.Atoi(s); err != nil || m.Calls < 1 {
			return m, newValidationError(rec, fmt.Sprintf("invalid calls %q", row.Calls))
		}
	}
	m.Genes = splitList(row.Genes)
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

// ReadMerged reads a merged table from in.
func ReadMerged(in io.Reader, source string, opts ReadOpts) ([]MergedRecord, ReadReport, error) {
	report := ReadReport{Source: source}
	r, err := NewTableReader(in, source, []string{"family_id", "chromosome", "start", "end", "sample_id"}, []string{"copy_state", "copy_number"})
	if err != nil {
		return nil, report, err
	}
	var merged []MergedRecord
	for {
		var row mergedRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, report, errors.E(err, fmt.Sprintf("%s:%d", source, report.Rows+2))
		}
		report.Rows++
		line := report.Rows + 1
		m, err := parseMergedRow(row, line)
		if err != nil {
			if err := report.Reject(opts, line, err); err != nil {
				return nil, report, err
			}
			continue
		}
		merged = append(merged, m)
	}
	return merged, report, nil
}

// ReadMergedFile reads a merged table from path.
func ReadMergedFile(ctx context.Context, path string, opts ReadOpts) ([]MergedRecord, ReadReport, error) {
	in, err := Open(ctx, path)
	if err != nil {
		return nil, ReadReport{Source: path}, err
	}
	merged, report, err := ReadMerged(in, path, opts)
	if cerr := in.Close(); err == nil && cerr != nil {
		err = errors.E(cerr, "close", path)
	}
	return merged, report, err
}

// WriteMerged writes merged records, in the given order, as a merged table.
func WriteMerged(out io.Writer, merged []MergedRecord) error {
	w := tsv.NewWriter(out)
	w.WriteString(strings.Join(MergedColumns, "\t"))
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, m := range merged {
		row := FormatRow(m.Record)
		w.WriteString(row.FamilyID)
		w.WriteString(row.Chrom)
		w.WriteString(row.Start)
		w.WriteString(row.End)
		w.WriteString(row.CopyState)
		w.WriteString(row.CopyNumber)
		w.WriteString(row.Confidence)
		w.WriteString(row.SampleID)
		w.WriteString(row.AffectedStatus)
		w.WriteString(row.SentrixID)
		w.WriteString(strings.Join(m.SourceSampleIDs, ","))
		w.WriteString(m.Cohort.String())
		w.WriteInt64(int64(m.Calls))
		w.WriteString(strings.Join(m.Genes, ","))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteMergedFile writes merged records to path.
func WriteMergedFile(ctx context.Context, path string, merged []MergedRecord) error {
	out, err := Create(ctx, path)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(WriteMerged(out, merged))
	e.Set(out.Close())
	return e.Err()
}

// WriteRecordsFile writes records to path as a raw CNV table.
func WriteRecordsFile(ctx context.Context, path string, records []Record) error {
	out, err := Create(ctx, path)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(WriteRecords(out, records))
	e.Set(out.Close())
	return e.Err()
}
