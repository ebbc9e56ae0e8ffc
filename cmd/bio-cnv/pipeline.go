package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnv/annotate"
	"github.com/grailbio/cnv/casecontrol"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/familymerge"
	"github.com/grailbio/cnv/interval"
	"github.com/grailbio/cnv/relgraph"
)

// summary collects the figures logged at the end of a run.
type summary struct {
	reports    []cnv.ReadReport
	replicates int
	merged     int
	digest     uint64
	hasDigest  bool
	detect     *casecontrol.Stats
	edges      int
}

func (s *summary) String() string {
	var parts []string
	for _, r := range s.reports {
		parts = append(parts, r.String())
	}
	if s.replicates > 0 {
		parts = append(parts, fmt.Sprintf("%d replicate calls set aside", s.replicates))
	}
	if s.hasDigest {
		parts = append(parts, fmt.Sprintf("%d merged records (digest %016x)", s.merged, s.digest))
	}
	if s.detect != nil {
		parts = append(parts, s.detect.String())
	}
	if s.edges > 0 {
		parts = append(parts, fmt.Sprintf("%d graph edges", s.edges))
	}
	return strings.Join(parts, "; ")
}

func (s *summary) log() { log.Printf("Stats: summary: %v", s) }

// digest returns the seahash of the merged table as WriteMerged writes it.
func digest(merged []cnv.MergedRecord) (uint64, error) {
	h := seahash.New()
	if err := cnv.WriteMerged(h, merged); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

func (s *summary) setMerged(merged []cnv.MergedRecord) error {
	d, err := digest(merged)
	if err != nil {
		return err
	}
	s.merged, s.digest, s.hasDigest = len(merged), d, true
	return nil
}

// regionFilter returns the test a record must pass to be processed: it must
// overlap the -region and the -bed intervals, if set.  It returns nil if
// neither is set.
func regionFilter(ctx context.Context, c config) (func(interval.Interval) bool, error) {
	var unions []interval.BEDUnion
	if c.Input.Region != "" {
		e, err := interval.ParseRegionString(c.Input.Region)
		if err != nil {
			return nil, errors.E(errors.Precondition, "region", err)
		}
		u, err := interval.NewBEDUnionFromEntries([]interval.Entry{e})
		if err != nil {
			return nil, errors.E(errors.Precondition, "region", err)
		}
		unions = append(unions, u)
	}
	if c.Input.BED != "" {
		u, err := interval.NewBEDUnionFromPath(ctx, c.Input.BED, interval.NewBEDOpts{})
		if err != nil {
			return nil, errors.E(err, "bed", c.Input.BED)
		}
		unions = append(unions, u)
	}
	if len(unions) == 0 {
		return nil, nil
	}
	return func(iv interval.Interval) bool {
		for i := range unions {
			if !unions[i].Overlaps(iv) {
				return false
			}
		}
		return true
	}, nil
}

// readRaw reads the raw calls at path and sets replicate calls aside.  The
// calls are not filtered by region: a record in the region may be built from
// calls outside of it, and families are counted in full.
func readRaw(ctx context.Context, c config, path string, s *summary) (calls, replicates []cnv.Record, err error) {
	records, report, err := cnv.ReadRecordsFile(ctx, path, c.readOpts())
	s.reports = append(s.reports, report)
	if err != nil {
		return nil, nil, err
	}
	calls, replicates = cnv.SplitReplicates(records)
	log.Printf("%s: %d calls, %d replicate calls", path, len(calls), len(replicates))
	return calls, replicates, nil
}

func filterMerged(merged []cnv.MergedRecord, keep func(interval.Interval) bool) []cnv.MergedRecord {
	if keep == nil {
		return merged
	}
	n := 0
	for _, m := range merged {
		if keep(m.Interval()) {
			merged[n] = m
			n++
		}
	}
	return merged[:n]
}

func filterRecords(records []cnv.Record, keep func(interval.Interval) bool) []cnv.Record {
	if keep == nil {
		return records
	}
	var out []cnv.Record
	for _, r := range records {
		if keep(r.Interval()) {
			out = append(out, r)
		}
	}
	return out
}

// readMerged reads the merged table at path and keeps the records that pass
// keep.
func readMerged(ctx context.Context, c config, path string, keep func(interval.Interval) bool, s *summary) ([]cnv.MergedRecord, error) {
	merged, report, err := cnv.ReadMergedFile(ctx, path, c.readOpts())
	s.reports = append(s.reports, report)
	if err != nil {
		return nil, err
	}
	return filterMerged(merged, keep), nil
}

// runMerge merges every call, so that records crossing the region boundary
// are complete, and keeps the merged records and replicate calls that pass
// keep.
func runMerge(ctx context.Context, c config, in, out, replicatesPath string, keep func(interval.Interval) bool, s *summary) ([]cnv.Record, []cnv.MergedRecord, error) {
	calls, replicates, err := readRaw(ctx, c, in, s)
	if err != nil {
		return nil, nil, err
	}
	merged, err := familymerge.Merge(calls, c.mergeOpts())
	if err != nil {
		return nil, nil, err
	}
	merged = filterMerged(merged, keep)
	replicates = filterRecords(replicates, keep)
	s.replicates += len(replicates)
	if err := s.setMerged(merged); err != nil {
		return nil, nil, err
	}
	if err := cnv.WriteMergedFile(ctx, out, merged); err != nil {
		return nil, nil, err
	}
	if replicatesPath != "" {
		if err := cnv.WriteRecordsFile(ctx, replicatesPath, replicates); err != nil {
			return nil, nil, err
		}
	}
	return calls, merged, nil
}

// runDuplicates checks merged against raw.  With a region filter, raw is
// narrowed to the calls connected to merged by casecontrol.Restrict.
func runDuplicates(ctx context.Context, c config, merged []cnv.MergedRecord, raw []cnv.Record, keep func(interval.Interval) bool, cleanPath, dupsPath string, s *summary) ([]cnv.MergedRecord, error) {
	if keep != nil {
		var err error
		if merged, raw, err = casecontrol.Restrict(merged, raw, keep); err != nil {
			return nil, err
		}
	}
	res, err := casecontrol.Detect(merged, raw, c.detectOpts())
	if err != nil {
		return nil, err
	}
	s.detect = &res.Stats
	if err := cnv.WriteMergedFile(ctx, cleanPath, res.Clean); err != nil {
		return nil, err
	}
	if err := casecontrol.WriteDuplicatesFile(ctx, dupsPath, res.Duplicates); err != nil {
		return nil, err
	}
	return res.Clean, nil
}

func runCaseControl(ctx context.Context, merged []cnv.MergedRecord, raw []cnv.Record, out string) error {
	samples, err := cnv.NewSamples(raw)
	if err != nil {
		return err
	}
	assoc, err := casecontrol.Significance(merged, raw, samples)
	if err != nil {
		return err
	}
	return casecontrol.WriteSignificanceFile(ctx, out, assoc)
}

func runAnnotate(ctx context.Context, c config, merged []cnv.MergedRecord, genesPath, out string, s *summary) ([]cnv.MergedRecord, error) {
	db, report, err := annotate.ReadGenesFile(ctx, genesPath, c.readOpts())
	s.reports = append(s.reports, report)
	if err != nil {
		return nil, err
	}
	annotated, _, err := annotate.Annotate(merged, db, c.annotateOpts())
	if err != nil {
		return nil, err
	}
	return annotated, cnv.WriteMergedFile(ctx, out, annotated)
}

type graphOutputs struct {
	graphML, json string
	neo4j         bool
}

func runGraph(ctx context.Context, c config, merged []cnv.MergedRecord, raw []cnv.Record, out graphOutputs, s *summary) error {
	var samples cnv.Samples
	if raw != nil {
		var err error
		if samples, err = cnv.NewSamples(raw); err != nil {
			return err
		}
	}
	opts, err := c.graphOpts()
	if err != nil {
		return err
	}
	g, err := relgraph.Build(merged, samples, opts)
	if err != nil {
		return err
	}
	s.edges = len(g.Edges)
	if out.graphML != "" {
		if err := relgraph.WriteGraphMLFile(ctx, out.graphML, g); err != nil {
			return err
		}
	}
	if out.json != "" {
		if err := relgraph.WriteCytoscapeJSONFile(ctx, out.json, g); err != nil {
			return err
		}
	}
	if out.neo4j {
		return exportNeo4j(ctx, c, g)
	}
	return nil
}

func exportNeo4j(ctx context.Context, c config, g relgraph.Graph) error {
	if c.Neo4j.Password == "" {
		return errors.E(errors.Precondition, "neo4j export needs $NEO4J_PASSWORD")
	}
	d, err := relgraph.NewDriver(ctx, c.Neo4j.URI, c.Neo4j.User, c.Neo4j.Password, c.Neo4j.Database)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(relgraph.NewNeo4jExporter(d).Export(ctx, g))
	e.Set(d.Close(ctx))
	return e.Err()
}

// mkdirAll creates dir if it is a local path.
func mkdirAll(dir string) error {
	scheme, _, err := file.ParsePath(dir)
	if err != nil {
		return err
	}
	if scheme != "" {
		return nil
	}
	return os.MkdirAll(dir, 0777)
}

// pipelineOutputs names the files runPipeline writes under outdir.
var pipelineOutputs = struct {
	merged, replicates, clean, duplicates, significance, annotated, graphML, json string
}{
	"merged.tsv", "replicates.tsv", "clean.tsv", "duplicates.tsv", "significance.tsv",
	"annotated.tsv", "graph.graphml", "graph.json",
}

// runPipeline merges the raw calls at in, checks the merged table against
// them, tests every clean record for case/control association, annotates the
// clean records if genesPath is set and builds the relation graph of the
// result.
func runPipeline(ctx context.Context, c config, in, outdir, genesPath string, neo4j bool, s *summary) error {
	if err := mkdirAll(outdir); err != nil {
		return err
	}
	keep, err := regionFilter(ctx, c)
	if err != nil {
		return err
	}
	o := pipelineOutputs
	path := func(name string) string { return file.Join(outdir, name) }
	raw, merged, err := runMerge(ctx, c, in, path(o.merged), path(o.replicates), keep, s)
	if err != nil {
		return err
	}
	clean, err := runDuplicates(ctx, c, merged, raw, keep, path(o.clean), path(o.duplicates), s)
	if err != nil {
		return err
	}
	if genesPath != "" {
		if clean, err = runAnnotate(ctx, c, clean, genesPath, path(o.annotated), s); err != nil {
			return err
		}
	}
	if err := runCaseControl(ctx, clean, raw, path(o.significance)); err != nil {
		return err
	}
	return runGraph(ctx, c, clean, raw, graphOutputs{path(o.graphML), path(o.json), neo4j}, s)
}
