package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnv/annotate"
	"github.com/grailbio/cnv/casecontrol"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/familymerge"
	"github.com/grailbio/cnv/interval"
	"github.com/grailbio/cnv/relgraph"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// config is the contents of the -config file.  Flags given on the command
// line override it.
type config struct {
	Input struct {
		FailFast bool   `toml:"fail_fast"`
		Region   string `toml:"region"`
		BED      string `toml:"bed"`
	} `toml:"input"`
	Merge struct {
		MinOverlapFraction float64 `toml:"min_overlap_fraction"`
		BoundaryTolerance  int     `toml:"boundary_tolerance"`
		Parallelism        int     `toml:"parallelism"`
	} `toml:"merge"`
	Duplicates struct {
		BoundaryTolerance int `toml:"boundary_tolerance"`
	} `toml:"duplicates"`
	Graph struct {
		Nodes              string  `toml:"nodes"`
		MinOverlapFraction float64 `toml:"min_overlap_fraction"`
	} `toml:"graph"`
	Annotate struct {
		MaxTier         int  `toml:"max_tier"`
		DropUnannotated bool `toml:"drop_unannotated"`
	} `toml:"annotate"`
	Neo4j struct {
		URI      string `toml:"uri"`
		User     string `toml:"user"`
		Database string `toml:"database"`
		// Password is read from $NEO4J_PASSWORD, never from the file.
		Password string `toml:"-"`
	} `toml:"neo4j"`
}

func defaultConfig() config {
	var c config
	c.Merge.MinOverlapFraction = familymerge.DefaultOpts.Match.MinOverlapFraction
	c.Merge.BoundaryTolerance = int(familymerge.DefaultOpts.Match.BoundaryTolerance)
	c.Merge.Parallelism = familymerge.DefaultOpts.Parallelism
	c.Duplicates.BoundaryTolerance = int(casecontrol.DefaultOpts.BoundaryTolerance)
	c.Graph.Nodes = relgraph.DefaultOpts.Nodes.String()
	c.Graph.MinOverlapFraction = relgraph.DefaultOpts.MinOverlapFraction
	c.Neo4j.URI = "bolt://localhost:7687"
	c.Neo4j.User = "neo4j"
	return c
}

func (c config) readOpts() cnv.ReadOpts { return cnv.ReadOpts{FailFast: c.Input.FailFast} }

func (c config) mergeOpts() familymerge.Opts {
	return familymerge.Opts{
		Match: interval.MatchOpts{
			MinOverlapFraction: c.Merge.MinOverlapFraction,
			BoundaryTolerance:  interval.PosType(c.Merge.BoundaryTolerance),
		},
		Parallelism: c.Merge.Parallelism,
	}
}

func (c config) detectOpts() casecontrol.Opts {
	return casecontrol.Opts{BoundaryTolerance: interval.PosType(c.Duplicates.BoundaryTolerance)}
}

func (c config) graphOpts() (relgraph.Opts, error) {
	kind, err := relgraph.ParseNodeKind(c.Graph.Nodes)
	if err != nil {
		return relgraph.Opts{}, err
	}
	return relgraph.Opts{
		Nodes:              kind,
		MinOverlapFraction: c.Graph.MinOverlapFraction,
		Parallelism:        c.Merge.Parallelism,
	}, nil
}

func (c config) annotateOpts() annotate.Opts {
	return annotate.Opts{MaxTier: c.Annotate.MaxTier, DropUnannotated: c.Annotate.DropUnannotated}
}

// validate checks every option.
func (c config) validate() error {
	for _, tol := range []struct {
		key   string
		value int
	}{
		{"merge.boundary_tolerance", c.Merge.BoundaryTolerance},
		{"duplicates.boundary_tolerance", c.Duplicates.BoundaryTolerance},
	} {
		if tol.value < 0 || tol.value > interval.PosTypeMax {
			return errors.E(errors.Precondition,
				fmt.Sprintf("%s must be in [0, %d], but found %d", tol.key, interval.PosTypeMax, tol.value))
		}
	}
	if err := c.mergeOpts().Validate(); err != nil {
		return err
	}
	if err := c.detectOpts().Validate(); err != nil {
		return err
	}
	g, err := c.graphOpts()
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	if err := c.annotateOpts().Validate(); err != nil {
		return err
	}
	if c.Input.Region != "" {
		if _, err := interval.ParseRegion(c.Input.Region); err != nil {
			return errors.E(errors.Precondition, "region", err)
		}
	}
	return nil
}

// loadConfigFile overlays the TOML file at path onto c.
func loadConfigFile(ctx context.Context, path string, c *config) error {
	in, err := cnv.Open(ctx, path)
	if err != nil {
		return err
	}
	data, err := ioutil.ReadAll(in)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.E(err, "read", path)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return errors.E(errors.Precondition, fmt.Sprintf("parse config %s", path), err)
	}
	return nil
}

// sharedFlags are the flags every subcommand accepts.
type sharedFlags struct {
	config             string
	env                string
	minOverlapFraction float64
	boundaryTolerance  int
	failFast           bool
	parallelism        int
	nodes              string
	region             string
	bed                string
}

func addSharedFlags(fs *flag.FlagSet) *sharedFlags {
	def := defaultConfig()
	f := &sharedFlags{}
	fs.StringVar(&f.config, "config", "", "TOML file with default settings; flags override it")
	fs.StringVar(&f.env, "env", ".env", "File of environment variables, such as NEO4J_PASSWORD, to load if it exists")
	fs.Float64Var(&f.minOverlapFraction, "min-overlap-fraction", def.Merge.MinOverlapFraction,
		"Minimum overlap, as a fraction of the shorter call, for two calls to be merged or related")
	fs.IntVar(&f.boundaryTolerance, "boundary-tolerance", def.Merge.BoundaryTolerance,
		"Number of bases two calls may be apart, or a merged record may disagree with its calls")
	fs.BoolVar(&f.failFast, "fail-fast", false, "Abort on the first invalid input row instead of skipping it")
	fs.IntVar(&f.parallelism, "parallelism", def.Merge.Parallelism, "Number of partitions processed concurrently")
	fs.StringVar(&f.nodes, "nodes", def.Graph.Nodes, "Relation graph nodes: sample or family")
	fs.StringVar(&f.region, "region", "", "Only process merged records overlapping this region, chr[:start-end]")
	fs.StringVar(&f.bed, "bed", "", "Only process merged records overlapping the intervals of this BED file")
	return f
}

// load builds the run configuration: defaults, then the -config file, then
// the flags set on the command line.  It also loads the -env file.
func (f *sharedFlags) load(ctx context.Context, fs *flag.FlagSet) (config, error) {
	c := defaultConfig()
	if f.config != "" {
		if err := loadConfigFile(ctx, f.config, &c); err != nil {
			return c, err
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "min-overlap-fraction":
			c.Merge.MinOverlapFraction = f.minOverlapFraction
			c.Graph.MinOverlapFraction = f.minOverlapFraction
		case "boundary-tolerance":
			c.Merge.BoundaryTolerance = f.boundaryTolerance
			c.Duplicates.BoundaryTolerance = f.boundaryTolerance
		case "fail-fast":
			c.Input.FailFast = f.failFast
		case "parallelism":
			c.Merge.Parallelism = f.parallelism
		case "nodes":
			c.Graph.Nodes = f.nodes
		case "region":
			c.Input.Region = f.region
		case "bed":
			c.Input.BED = f.bed
		}
	})
	if f.env != "" {
		if err := godotenv.Load(f.env); err != nil {
			log.Debug.Printf("env file %s not loaded: %v", f.env, err)
		}
	}
	c.Neo4j.Password = os.Getenv("NEO4J_PASSWORD")
	return c, c.validate()
}
