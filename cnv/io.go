package cnv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

type writeCloser struct {
	io.Writer
	close func() error
}

func (w writeCloser) Close() error { return w.close() }

// Open opens path for reading.  Paths ending in ".gz" are decompressed.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return readCloser{f.Reader(ctx), func() error { return f.Close(ctx) }}, nil
	}
	gz, err := gzip.NewReader(f.Reader(ctx))
	if err != nil {
		_ = f.Close(ctx)
		return nil, errors.E(err, "gunzip", path)
	}
	return readCloser{gz, func() error {
		e := errors.Once{}
		e.Set(gz.Close())
		e.Set(f.Close(ctx))
		return e.Err()
	}}, nil
}

// Create creates path for writing.  Paths ending in ".gz" are compressed.
func Create(ctx context.Context, path string) (io.WriteCloser, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return writeCloser{f.Writer(ctx), func() error { return f.Close(ctx) }}, nil
	}
	gz := gzip.NewWriter(f.Writer(ctx))
	return writeCloser{gz, func() error {
		e := errors.Once{}
		e.Set(gz.Close())
		e.Set(f.Close(ctx))
		return e.Err()
	}}, nil
}

// ReadOpts controls table ingestion.
type ReadOpts struct {
	// FailFast makes the first invalid row abort the read.  Otherwise invalid
	// rows are skipped and reported in the ReadReport.
	FailFast bool
}

// ReadReport summarizes one table read.
type ReadReport struct {
	Source string
	// Rows is the number of data rows read, valid or not.
	Rows int
	// Rejected is the number of rows skipped because they failed validation.
	Rejected int
	// Errors holds one error per rejected row, in input order.
	Errors []error
}

// Add folds another report into r.
func (r *ReadReport) Add(o ReadReport) {
	r.Rows += o.Rows
	r.Rejected += o.Rejected
	r.Errors = append(r.Errors, o.Errors...)
}

func (r ReadReport) String() string {
	return fmt.Sprintf("%s: %d rows, %d accepted, %d rejected", r.Source, r.Rows, r.Rows-r.Rejected, r.Rejected)
}

var requiredRawColumns = []string{"sample_id", "family_id", "chromosome", "start", "end"}

// checkHeader reads the header line from in and verifies that it names every
// required column and at least one of anyOf.  It returns a reader that
// replays the header followed by the rest of the input.
func checkHeader(in io.Reader, source string, required, anyOf []string) (io.Reader, error) {
	br := bufio.NewReaderSize(in, 64<<10)
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, errors.E(err, "read header", source)
	}
	if strings.TrimSpace(line) == "" {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: missing header row", source))
	}
	cols := map[string]bool{}
	for _, c := range strings.Split(strings.TrimRight(line, "\r\n"), "\t") {
		cols[strings.TrimSpace(c)] = true
	}
	var missing []string
	for _, c := range required {
		if !cols[c] {
			missing = append(missing, c)
		}
	}
	if len(anyOf) > 0 {
		found := false
		for _, c := range anyOf {
			found = found || cols[c]
		}
		if !found {
			missing = append(missing, strings.Join(anyOf, "|"))
		}
	}
	if len(missing) > 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: missing columns %s", source, strings.Join(missing, ", ")))
	}
	return io.MultiReader(strings.NewReader(line), br), nil
}

// NewTableReader checks the header of in like checkHeader and returns a
// reader that maps columns onto struct fields by their tsv tags.  Optional
// columns may be absent.
func NewTableReader(in io.Reader, source string, required, anyOf []string) (*tsv.Reader, error) {
	in, err := checkHeader(in, source, required, anyOf)
	if err != nil {
		return nil, err
	}
	r := tsv.NewReader(in)
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	r.IgnoreMissingColumns = true
	return r, nil
}

// Reject records a row error in the report, or returns it if opts.FailFast is
// set.
func (r *ReadReport) Reject(opts ReadOpts, line int, err error) error {
	err = RowError(r.Source, line, err)
	if opts.FailFast {
		return err
	}
	log.Error.Printf("skipping row: %v", err)
	r.Rejected++
	r.Errors = append(r.Errors, err)
	return nil
}

// ReadRecords reads a raw CNV table from in.  source names the input in
// error messages.  The returned error is non-nil if the table is
// structurally unreadable, or if opts.FailFast is set and a row is invalid.
func ReadRecords(in io.Reader, source string, opts ReadOpts) ([]Record, ReadReport, error) {
	report := ReadReport{Source: source}
	r, err := NewTableReader(in, source, requiredRawColumns, []string{"copy_state", "copy_number"})
	if err != nil {
		return nil, report, err
	}
	var records []Record
	for {
		var row RawRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, report, errors.E(err, fmt.Sprintf("%s:%d", source, report.Rows+2))
		}
		report.Rows++
		line := report.Rows + 1
		rec, err := ParseRow(row, line)
		if err != nil {
			if err := report.Reject(opts, line, err); err != nil {
				return nil, report, err
			}
			continue
		}
		records = append(records, rec)
	}
	return records, report, nil
}

// ReadRecordsFile reads a raw CNV table from path.
func ReadRecordsFile(ctx context.Context, path string, opts ReadOpts) ([]Record, ReadReport, error) {
	in, err := Open(ctx, path)
	if err != nil {
		return nil, ReadReport{Source: path}, err
	}
	records, report, err := ReadRecords(in, path, opts)
	if cerr := in.Close(); err == nil && cerr != nil {
		err = errors.E(cerr, "close", path)
	}
	return records, report, err
}

// WriteRecords writes records as a raw CNV table.
func WriteRecords(out io.Writer, records []Record) error {
	w := tsv.NewWriter(out)
	w.WriteString("sample_id\tfamily_id\tchromosome\tstart\tend\tcopy_state\taffected_status\tconfidence\tcopy_number\tsentrix_id")
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, r := range records {
		row := FormatRow(r)
		w.WriteString(row.SampleID)
		w.WriteString(row.FamilyID)
		w.WriteString(row.Chrom)
		w.WriteString(row.Start)
		w.WriteString(row.End)
		w.WriteString(row.CopyState)
		w.WriteString(row.AffectedStatus)
		w.WriteString(row.Confidence)
		w.WriteString(row.CopyNumber)
		w.WriteString(row.SentrixID)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
