package annotate

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnv/cnv"
)

// Opts configures Annotate.
type Opts struct {
	// MaxTier ignores genes of a higher tier.  Zero keeps every tier.
	MaxTier int
	// DropUnannotated removes the records that overlap no gene.
	DropUnannotated bool
}

// DefaultOpts keeps every tier and every record.
var DefaultOpts = Opts{}

// Validate checks the options.
func (o Opts) Validate() error {
	if o.MaxTier < 0 {
		return errors.E(errors.Precondition, fmt.Sprintf("max tier must be non-negative, but found %d", o.MaxTier))
	}
	return nil
}

// Stats summarizes one Annotate run.
type Stats struct {
	Records   int
	Annotated int
	Dropped   int
	// Tiers counts gene hits by tier.
	Tiers map[int]int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d records, %d annotated, %d dropped, hits by tier %v", s.Records, s.Annotated, s.Dropped, s.Tiers)
}

// Annotate sets the Genes of every merged record to the symbols of the genes
// it overlaps, ordered by tier and then symbol.  The input is not modified.
func Annotate(merged []cnv.MergedRecord, db *DB, opts Opts) ([]cnv.MergedRecord, Stats, error) {
	stats := Stats{Records: len(merged), Tiers: map[int]int{}}
	if err := opts.Validate(); err != nil {
		return nil, stats, err
	}
	out := make([]cnv.MergedRecord, 0, len(merged))
	for _, m := range merged {
		var genes []string
		for _, g := range db.Overlapping(m.Interval()) {
			if opts.MaxTier > 0 && g.Tier > opts.MaxTier {
				continue
			}
			genes = append(genes, g.Symbol)
			stats.Tiers[g.Tier]++
		}
		if len(genes) == 0 && opts.DropUnannotated {
			log.Debug.Printf("annotate: dropping %v", m)
			stats.Dropped++
			continue
		}
		if len(genes) > 0 {
			stats.Annotated++
		}
		m.Genes = genes
		out = append(out, m)
	}
	log.Printf("Stats: annotate: %v", stats)
	return out, stats, nil
}
