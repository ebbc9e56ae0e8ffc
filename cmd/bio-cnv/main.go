// bio-cnv consolidates the CNV calls of families, checks the merged calls
// against the raw ones, tests them for case/control association and builds
// the relation graph of the families.
//
// Example:
//
//	bio-cnv run -in calls.tsv -outdir out -genes genes.tsv
//
// is the same as
//
//	bio-cnv merge -in calls.tsv -out out/merged.tsv -replicates out/replicates.tsv
//	bio-cnv duplicates -merged out/merged.tsv -raw calls.tsv -clean out/clean.tsv -dups out/duplicates.tsv
//	bio-cnv annotate -merged out/clean.tsv -genes genes.tsv -out out/annotated.tsv
//	bio-cnv case-control -merged out/annotated.tsv -raw calls.tsv -out out/significance.tsv
//	bio-cnv graph -merged out/annotated.tsv -raw calls.tsv -graphml out/graph.graphml -json out/graph.json
//
// -region chr:start-end and -bed regions.bed restrict every command to the
// merged records overlapping the given intervals.
package main

import (
	"flag"
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnv/cnv"
	"v.io/x/lib/cmdline"
)

func required(name string, values ...string) error {
	for _, v := range values {
		if v == "" {
			return fmt.Errorf("%s: flags %v are required", name, requiredFlags[name])
		}
	}
	return nil
}

var requiredFlags = map[string][]string{
	"merge":        {"-in", "-out"},
	"duplicates":   {"-merged", "-raw", "-clean", "-dups"},
	"case-control": {"-merged", "-raw", "-out"},
	"graph":        {"-merged"},
	"annotate":     {"-merged", "-genes", "-out"},
	"run":          {"-in", "-outdir"},
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "merge",
		Short: "Merge the overlapping calls of each family",
	}
	shared := addSharedFlags(&cmd.Flags)
	in := cmd.Flags.String("in", "", "Raw CNV table (.tsv or .tsv.gz)")
	out := cmd.Flags.String("out", "", "Merged table to write")
	replicates := cmd.Flags.String("replicates", "", "If set, write the calls of replicate genotypings here")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := required(cmd.Name, *in, *out); err != nil {
			return err
		}
		ctx := vcontext.Background()
		c, err := shared.load(ctx, &cmd.Flags)
		if err != nil {
			return err
		}
		keep, err := regionFilter(ctx, c)
		if err != nil {
			return err
		}
		s := &summary{}
		defer s.log()
		_, _, err = runMerge(ctx, c, *in, *out, *replicates, keep, s)
		return err
	})
	return cmd
}

func newCmdDuplicates() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "duplicates",
		Short: "Compare a merged table against its raw calls and report the discrepancies",
	}
	shared := addSharedFlags(&cmd.Flags)
	merged := cmd.Flags.String("merged", "", "Merged table")
	raw := cmd.Flags.String("raw", "", "Raw CNV table the merged table was built from")
	clean := cmd.Flags.String("clean", "", "Merged records without discrepancies are written here")
	dups := cmd.Flags.String("dups", "", "Discrepancies are written here")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := required(cmd.Name, *merged, *raw, *clean, *dups); err != nil {
			return err
		}
		ctx := vcontext.Background()
		c, err := shared.load(ctx, &cmd.Flags)
		if err != nil {
			return err
		}
		keep, err := regionFilter(ctx, c)
		if err != nil {
			return err
		}
		s := &summary{}
		defer s.log()
		m, err := readMerged(ctx, c, *merged, keep, s)
		if err != nil {
			return err
		}
		r, _, err := readRaw(ctx, c, *raw, s)
		if err != nil {
			return err
		}
		_, err = runDuplicates(ctx, c, m, r, keep, *clean, *dups, s)
		return err
	})
	return cmd
}

func newCmdCaseControl() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "case-control",
		Short: "Test every merged record for association with the affected status",
	}
	shared := addSharedFlags(&cmd.Flags)
	merged := cmd.Flags.String("merged", "", "Merged table")
	raw := cmd.Flags.String("raw", "", "Raw CNV table with the affected status of every sample")
	out := cmd.Flags.String("out", "", "Significance table to write")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := required(cmd.Name, *merged, *raw, *out); err != nil {
			return err
		}
		ctx := vcontext.Background()
		c, err := shared.load(ctx, &cmd.Flags)
		if err != nil {
			return err
		}
		keep, err := regionFilter(ctx, c)
		if err != nil {
			return err
		}
		s := &summary{}
		defer s.log()
		m, err := readMerged(ctx, c, *merged, keep, s)
		if err != nil {
			return err
		}
		r, _, err := readRaw(ctx, c, *raw, s)
		if err != nil {
			return err
		}
		return runCaseControl(ctx, m, r, *out)
	})
	return cmd
}

func newCmdGraph() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "graph",
		Short: "Build the graph of samples or families sharing CNVs",
	}
	shared := addSharedFlags(&cmd.Flags)
	merged := cmd.Flags.String("merged", "", "Merged table, usually the clean output of duplicates")
	raw := cmd.Flags.String("raw", "", "If set, the raw CNV table to take the affected status of samples from")
	graphML := cmd.Flags.String("graphml", "", "GraphML file to write")
	json := cmd.Flags.String("json", "", "Cytoscape JSON file to write")
	neo4j := cmd.Flags.Bool("neo4j", false, "Load the graph into Neo4j; see the [neo4j] config section and $NEO4J_PASSWORD")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := required(cmd.Name, *merged); err != nil {
			return err
		}
		if *graphML == "" && *json == "" && !*neo4j {
			return fmt.Errorf("graph: at least one of -graphml, -json and -neo4j is required")
		}
		ctx := vcontext.Background()
		c, err := shared.load(ctx, &cmd.Flags)
		if err != nil {
			return err
		}
		keep, err := regionFilter(ctx, c)
		if err != nil {
			return err
		}
		s := &summary{}
		defer s.log()
		m, err := readMerged(ctx, c, *merged, keep, s)
		if err != nil {
			return err
		}
		var r []cnv.Record
		if *raw != "" {
			if r, _, err = readRaw(ctx, c, *raw, s); err != nil {
				return err
			}
		}
		return runGraph(ctx, c, m, r, graphOutputs{*graphML, *json, *neo4j}, s)
	})
	return cmd
}

func newCmdAnnotate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "annotate",
		Short: "Attach the overlapping genes to merged records",
	}
	shared := addSharedFlags(&cmd.Flags)
	merged := cmd.Flags.String("merged", "", "Merged table")
	genes := cmd.Flags.String("genes", "", "Gene table with columns chromosome, start, end, symbol and tier")
	out := cmd.Flags.String("out", "", "Annotated merged table to write")
	maxTier := cmd.Flags.Int("max-tier", 0, "If positive, ignore genes of a higher tier")
	drop := cmd.Flags.Bool("drop-unannotated", false, "Drop the records that overlap no gene")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := required(cmd.Name, *merged, *genes, *out); err != nil {
			return err
		}
		ctx := vcontext.Background()
		c, err := shared.load(ctx, &cmd.Flags)
		if err != nil {
			return err
		}
		cmd.Flags.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "max-tier":
				c.Annotate.MaxTier = *maxTier
			case "drop-unannotated":
				c.Annotate.DropUnannotated = *drop
			}
		})
		keep, err := regionFilter(ctx, c)
		if err != nil {
			return err
		}
		s := &summary{}
		defer s.log()
		m, err := readMerged(ctx, c, *merged, keep, s)
		if err != nil {
			return err
		}
		_, err = runAnnotate(ctx, c, m, *genes, *out, s)
		return err
	})
	return cmd
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "run",
		Short: "Run merge, duplicates, annotate, case-control and graph in one go",
	}
	shared := addSharedFlags(&cmd.Flags)
	in := cmd.Flags.String("in", "", "Raw CNV table (.tsv or .tsv.gz)")
	outdir := cmd.Flags.String("outdir", "", "Directory to write the outputs to")
	genes := cmd.Flags.String("genes", "", "If set, annotate the clean records with this gene table")
	neo4j := cmd.Flags.Bool("neo4j", false, "Also load the graph into Neo4j")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := required(cmd.Name, *in, *outdir); err != nil {
			return err
		}
		ctx := vcontext.Background()
		c, err := shared.load(ctx, &cmd.Flags)
		if err != nil {
			return err
		}
		s := &summary{}
		defer s.log()
		return runPipeline(ctx, c, *in, *outdir, *genes, *neo4j, s)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-cnv",
		Short:    "Consolidate and check family CNV calls",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdMerge(),
			newCmdDuplicates(),
			newCmdCaseControl(),
			newCmdGraph(),
			newCmdAnnotate(),
			newCmdRun(),
		},
	}
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
