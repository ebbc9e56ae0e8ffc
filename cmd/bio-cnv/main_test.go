package main

import (
	"flag"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnv/casecontrol"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/familymerge"
	"github.com/grailbio/cnv/interval"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
	"github.com/stretchr/testify/require"
)

const rawCalls = "sample_id\tfamily_id\tchromosome\tstart\tend\tcopy_state\taffected_status\tconfidence\tsentrix_id\n" +
	"A\tF1\tchr2\t100\t200\tDEL\tCASE\t0.9\ts1\n" +
	"B\tF1\tchr2\t150\t250\tDEL\tCONTROL\t0.5\ts2\n" +
	"C\tF1\tchr2\t180\t220\tDUP\tCASE\t0.7\ts3\n" +
	"A\tF1\tchr2\t120\t190\tDEL\tCASE\t0.9\ts9\n" +
	"D\tF2\tchr2\t160\t210\tDEL\tCASE\t0.8\ts4\n" +
	"E\tF2\tchr7\t1\t100\tDUP\tCONTROL\t0.1\ts5\n" +
	"X\tF2\tchr7\tx\t10\tDUP\tCASE\t0.1\ts6\n" +
	"G\tF3\tchr7\t50\t150\tDUP\tCASE\t0.3\ts7\n"

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0600))
}

func readLines(t *testing.T, path string) []string {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRunPipeline(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := filepath.Join(dir, "calls.tsv")
	writeFile(t, in, rawCalls)
	outdir := filepath.Join(dir, "out")

	s := &summary{}
	require.NoError(t, runPipeline(ctx, defaultConfig(), in, outdir, "", false, s))
	require.Len(t, s.reports, 1)
	expect.EQ(t, s.reports[0].Rejected, 1)
	expect.EQ(t, s.replicates, 1)
	expect.EQ(t, s.merged, 5)
	expect.True(t, s.hasDigest)
	expect.EQ(t, s.detect.Entries[casecontrol.StateMismatch], 1)
	expect.EQ(t, s.detect.Clean, 3)
	expect.EQ(t, s.edges, 1)
	expect.That(t, s.String(), h.HasSubstr("1 replicate calls set aside"))

	merged, _, err := cnv.ReadMergedFile(ctx, filepath.Join(outdir, "merged.tsv"), cnv.ReadOpts{FailFast: true})
	require.NoError(t, err)
	require.Len(t, merged, 5)
	expect.EQ(t, merged[0].SourceSampleIDs, []string{"A", "B"})
	expect.EQ(t, merged[0].Interval(), interval.Interval{Chrom: "chr2", Start: 100, End: 250})
	d, err := digest(merged)
	require.NoError(t, err)
	expect.EQ(t, d, s.digest)

	replicates := readLines(t, filepath.Join(outdir, "replicates.tsv"))
	require.Len(t, replicates, 2)
	expect.True(t, strings.HasPrefix(replicates[1], "A\tF1\tchr2\t120\t190\t"), replicates[1])

	dups := readLines(t, filepath.Join(outdir, "duplicates.tsv"))
	require.Len(t, dups, 2)
	expect.True(t, strings.HasPrefix(dups[1], "STATE_MISMATCH\tF1\tchr2\t100\t250\t"), dups[1])

	clean, _, err := cnv.ReadMergedFile(ctx, filepath.Join(outdir, "clean.tsv"), cnv.ReadOpts{FailFast: true})
	require.NoError(t, err)
	expect.EQ(t, len(clean), 3)
	expect.EQ(t, len(readLines(t, filepath.Join(outdir, "significance.tsv"))), 4)

	graph, err := ioutil.ReadFile(filepath.Join(outdir, "graph.json"))
	require.NoError(t, err)
	expect.That(t, string(graph), h.HasSubstr(`"source": "E"`))
	expect.That(t, string(graph), h.HasSubstr(`"target": "G"`))
	_, err = os.Stat(filepath.Join(outdir, "graph.graphml"))
	expect.NoError(t, err)
	_, err = os.Stat(filepath.Join(outdir, "annotated.tsv"))
	expect.True(t, os.IsNotExist(err))
}

func TestRunPipelineGenesAndRegion(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := filepath.Join(dir, "calls.tsv")
	writeFile(t, in, rawCalls)
	genes := filepath.Join(dir, "genes.tsv")
	writeFile(t, genes, "chromosome\tstart\tend\tsymbol\ttier\nchr7\t90\t95\tGENE7\t1\n")
	outdir := filepath.Join(dir, "out")

	c := defaultConfig()
	c.Input.Region = "chr7"
	c.Annotate.DropUnannotated = true
	s := &summary{}
	require.NoError(t, runPipeline(ctx, c, in, outdir, genes, false, s))
	expect.EQ(t, s.merged, 2)
	expect.EQ(t, s.replicates, 0)

	annotated, _, err := cnv.ReadMergedFile(ctx, filepath.Join(outdir, "annotated.tsv"), cnv.ReadOpts{})
	require.NoError(t, err)
	require.Len(t, annotated, 2)
	for _, m := range annotated {
		expect.EQ(t, m.Genes, []string{"GENE7"})
	}
	significance := readLines(t, filepath.Join(outdir, "significance.tsv"))
	require.Len(t, significance, 3)
	expect.That(t, significance[1], h.HasSubstr("\tGENE7\t"))
}

func TestRunPipelineBED(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := filepath.Join(dir, "calls.tsv")
	writeFile(t, in, rawCalls)
	// Only G (chr7:50-150) overlaps the 1-based bases 121-130.
	bed := filepath.Join(dir, "regions.bed")
	writeFile(t, bed, "chr7\t120\t130\n")
	outdir := filepath.Join(dir, "out")

	c := defaultConfig()
	c.Input.BED = bed
	s := &summary{}
	require.NoError(t, runPipeline(ctx, c, in, outdir, "", false, s))
	expect.EQ(t, s.merged, 1)
	expect.EQ(t, s.detect.Clean, 1)
	merged, _, err := cnv.ReadMergedFile(ctx, filepath.Join(outdir, "merged.tsv"), cnv.ReadOpts{FailFast: true})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	expect.EQ(t, merged[0].SourceSampleIDs, []string{"G"})

	c.Input.BED = filepath.Join(dir, "missing.bed")
	assert.NotNil(t, runPipeline(ctx, c, in, outdir, "", false, &summary{}))
}

func TestDuplicatesInRegion(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	rawPath := filepath.Join(dir, "calls.tsv")
	writeFile(t, rawPath, "sample_id\tfamily_id\tchromosome\tstart\tend\tcopy_state\taffected_status\n"+
		"A\tF1\tchr1\t100\t200\tDEL\tCASE\n"+
		"B\tF1\tchr1\t190\t300\tDEL\tCONTROL\n"+
		"C\tF1\tchr1\t5000\t6000\tDUP\tCONTROL\n")
	mergedPath := filepath.Join(dir, "merged.tsv")

	c := defaultConfig()
	s := &summary{}
	_, _, err := runMerge(ctx, c, rawPath, mergedPath, "", nil, s)
	require.NoError(t, err)
	expect.EQ(t, s.merged, 2)

	// The region covers A's call only, but the record A and B share
	// reaches into it.
	c.Input.Region = "chr1:1-150"
	keep, err := regionFilter(ctx, c)
	require.NoError(t, err)
	s = &summary{}
	m, err := readMerged(ctx, c, mergedPath, keep, s)
	require.NoError(t, err)
	require.Len(t, m, 1)
	raw, _, err := readRaw(ctx, c, rawPath, s)
	require.NoError(t, err)
	expect.EQ(t, len(raw), 3)
	clean, err := runDuplicates(ctx, c, m, raw, keep, filepath.Join(dir, "clean.tsv"), filepath.Join(dir, "dups.tsv"), s)
	require.NoError(t, err)
	require.Len(t, clean, 1)
	expect.EQ(t, clean[0].SourceSampleIDs, []string{"A", "B"})
	expect.EQ(t, s.detect.Raw, 2)
	for _, n := range s.detect.Entries {
		expect.EQ(t, n, 0)
	}
	expect.EQ(t, len(readLines(t, filepath.Join(dir, "dups.tsv"))), 1)

	// Families are counted in full: C is a negative control.
	out := filepath.Join(dir, "significance.tsv")
	require.NoError(t, runCaseControl(ctx, clean, raw, out))
	significance := readLines(t, out)
	require.Len(t, significance, 2)
	expect.True(t, strings.HasPrefix(significance[1], "F1\tchr1\t100\t300\tDELETION\t1\t0\t1\t1\t"), significance[1])
}

func TestRunPipelineFailFast(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	in := filepath.Join(dir, "calls.tsv")
	writeFile(t, in, rawCalls)
	c := defaultConfig()
	c.Input.FailFast = true
	err := runPipeline(ctx, c, in, filepath.Join(dir, "out"), "", false, &summary{})
	assert.NotNil(t, err)
	expect.True(t, cnv.IsValidation(err), "%v", err)
	expect.That(t, err.Error(), h.HasSubstr("calls.tsv:8"))
}

func TestDigestIsOrderIndependent(t *testing.T) {
	records, _, err := cnv.ReadRecords(strings.NewReader(rawCalls), "calls.tsv", cnv.ReadOpts{})
	require.NoError(t, err)
	calls, _ := cnv.SplitReplicates(records)
	merged, err := familymerge.Merge(calls, familymerge.DefaultOpts)
	require.NoError(t, err)
	want, err := digest(merged)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(0))
	r.Shuffle(len(calls), func(i, j int) { calls[i], calls[j] = calls[j], calls[i] })
	merged, err = familymerge.Merge(calls, familymerge.Opts{Match: interval.DefaultMatchOpts, Parallelism: 3})
	require.NoError(t, err)
	got, err := digest(merged)
	require.NoError(t, err)
	expect.EQ(t, got, want)

	got, err = digest(merged[1:])
	require.NoError(t, err)
	expect.True(t, got != want)
}

func TestLoadConfig(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "cnv.toml")
	writeFile(t, path, `
[merge]
min_overlap_fraction = 0.5
parallelism = 3

[graph]
nodes = "family"

[neo4j]
uri = "bolt://db:7687"
`)
	env := filepath.Join(dir, "test.env")
	writeFile(t, env, "NEO4J_PASSWORD=secret\n")
	require.NoError(t, os.Unsetenv("NEO4J_PASSWORD"))
	defer os.Unsetenv("NEO4J_PASSWORD")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := addSharedFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-env", env, "-parallelism", "5", "-boundary-tolerance", "10"}))
	c, err := f.load(ctx, fs)
	require.NoError(t, err)
	expect.EQ(t, c.Merge.MinOverlapFraction, 0.5)
	expect.EQ(t, c.Graph.MinOverlapFraction, interval.AnyOverlap)
	expect.EQ(t, c.Merge.Parallelism, 5)
	expect.EQ(t, c.Merge.BoundaryTolerance, 10)
	expect.EQ(t, c.Duplicates.BoundaryTolerance, 10)
	expect.EQ(t, c.Graph.Nodes, "family")
	expect.EQ(t, c.Neo4j.URI, "bolt://db:7687")
	expect.EQ(t, c.Neo4j.User, "neo4j")
	expect.EQ(t, c.Neo4j.Password, "secret")
	expect.EQ(t, c.mergeOpts().Match.BoundaryTolerance, interval.PosType(10))

	for _, args := range [][]string{
		{"-nodes", "gene"},
		{"-min-overlap-fraction", "2"},
		{"-parallelism", "-1"},
		{"-region", ":5"},
		{"-boundary-tolerance", "4294967306"},
		{"-boundary-tolerance", "-1"},
		{"-config", filepath.Join(dir, "missing.toml")},
	} {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		f := addSharedFlags(fs)
		require.NoError(t, fs.Parse(append(args, "-env", "")))
		_, err := f.load(ctx, fs)
		assert.NotNil(t, err, "%v", args)
	}

	writeFile(t, path, "[duplicates]\nboundary_tolerance = 2147483648\n")
	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = addSharedFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-env", ""}))
	_, err = f.load(ctx, fs)
	expect.True(t, cnv.IsConfiguration(err), "%v", err)
	expect.That(t, err.Error(), h.HasSubstr("duplicates.boundary_tolerance"))

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = addSharedFlags(fs)
	require.NoError(t, fs.Parse([]string{"-bed", "regions.bed", "-region", "chr1:5-5", "-env", ""}))
	c, err = f.load(ctx, fs)
	require.NoError(t, err)
	expect.EQ(t, c.Input.BED, "regions.bed")

	writeFile(t, path, "[merge\n")
	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = addSharedFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-env", ""}))
	_, err = f.load(ctx, fs)
	expect.True(t, cnv.IsConfiguration(err), "%v", err)
}

func TestRequired(t *testing.T) {
	expect.NoError(t, required("merge", "a", "b"))
	err := required("merge", "a", "")
	assert.NotNil(t, err)
	expect.That(t, err.Error(), h.HasSubstr("[-in -out]"))
	expect.EQ(t, len(newCmdRoot().Children), 6)
}
