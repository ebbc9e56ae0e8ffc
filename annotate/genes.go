// Package annotate attaches the genes a merged CNV record overlaps to the
// record.  Genes come from a table with columns chromosome, start, end,
// symbol and tier; start and end may also be named "GRCh37 start" and
// "GRCh37 end".  Lower tiers are more relevant.
package annotate

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
)

// Gene is one row of the gene table.
type Gene struct {
	Symbol string
	Tier   int
	interval.Interval
}

func (g Gene) String() string {
	return fmt.Sprintf("%s(tier %d) %v", g.Symbol, g.Tier, g.Interval)
}

type geneRow struct {
	Chrom       string `tsv:"chromosome"`
	Start       string `tsv:"start"`
	End         string `tsv:"end"`
	GRCh37Start string `tsv:"GRCh37 start"`
	GRCh37End   string `tsv:"GRCh37 end"`
	Symbol      string `tsv:"symbol"`
	Tier        string `tsv:"tier"`
}

func parsePos(s, name string) (interval.PosType, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return interval.PosType(v), nil
}

func parseGeneRow(row geneRow) (Gene, error) {
	start, end := row.Start, row.End
	if strings.TrimSpace(start) == "" {
		start = row.GRCh37Start
	}
	if strings.TrimSpace(end) == "" {
		end = row.GRCh37End
	}
	g := Gene{Symbol: strings.TrimSpace(row.Symbol)}
	g.Chrom = strings.TrimSpace(row.Chrom)
	var err error
	if g.Start, err = parsePos(start, "start"); err != nil {
		return Gene{}, err
	}
	if g.End, err = parsePos(end, "end"); err != nil {
		return Gene{}, err
	}
	if err := g.Interval.Valid(); err != nil {
		return Gene{}, err
	}
	if g.Symbol == "" {
		return Gene{}, fmt.Errorf("empty gene symbol")
	}
	if g.Tier, err = strconv.Atoi(strings.TrimSpace(row.Tier)); err != nil || g.Tier < 1 {
		return Gene{}, fmt.Errorf("invalid tier %q", row.Tier)
	}
	return g, nil
}

// DB holds a gene table, indexed by position.
type DB struct {
	genes []Gene
	index *interval.Index
}

// NewDB indexes genes.
func NewDB(genes []Gene) (*DB, error) {
	db := &DB{genes: genes, index: interval.NewIndex()}
	for i, g := range genes {
		if err := db.index.Insert(g.Interval, i); err != nil {
			return nil, errors.E(err, g.Symbol)
		}
	}
	return db, nil
}

// Len returns the number of genes in db.
func (db *DB) Len() int { return len(db.genes) }

// Overlapping returns the genes sharing at least one base with iv, ordered by
// tier, then symbol.  A symbol listed more than once is reported once, with
// its lowest tier.
func (db *DB) Overlapping(iv interval.Interval) []Gene {
	var hits []Gene
	for _, i := range db.index.Overlapping(iv) {
		hits = append(hits, db.genes[i])
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Tier != hits[j].Tier {
			return hits[i].Tier < hits[j].Tier
		}
		return hits[i].Symbol < hits[j].Symbol
	})
	seen := map[string]bool{}
	out := hits[:0]
	for _, g := range hits {
		if !seen[g.Symbol] {
			seen[g.Symbol] = true
			out = append(out, g)
		}
	}
	return out
}

// ReadGenes reads a gene table from in.  Invalid rows are handled as
// ReadRecords handles them.
func ReadGenes(in io.Reader, source string, opts cnv.ReadOpts) (*DB, cnv.ReadReport, error) {
	report := cnv.ReadReport{Source: source}
	r, err := cnv.NewTableReader(in, source, []string{"chromosome", "symbol", "tier"}, []string{"start", "GRCh37 start"})
	if err != nil {
		return nil, report, err
	}
	var genes []Gene
	for {
		var row geneRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, report, errors.E(err, fmt.Sprintf("%s:%d", source, report.Rows+2))
		}
		report.Rows++
		line := report.Rows + 1
		g, err := parseGeneRow(row)
		if err != nil {
			if err := report.Reject(opts, line, err); err != nil {
				return nil, report, err
			}
			continue
		}
		genes = append(genes, g)
	}
	db, err := NewDB(genes)
	return db, report, err
}

// ReadGenesFile reads a gene table from path.
func ReadGenesFile(ctx context.Context, path string, opts cnv.ReadOpts) (*DB, cnv.ReadReport, error) {
	in, err := cnv.Open(ctx, path)
	if err != nil {
		return nil, cnv.ReadReport{Source: path}, err
	}
	db, report, err := ReadGenes(in, path, opts)
	if cerr := in.Close(); err == nil && cerr != nil {
		err = errors.E(cerr, "close", path)
	}
	return db, report, err
}
