package familymerge

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cnv/interval"
)

// Opts configures Merge.
type Opts struct {
	// Match decides whether two calls of the same family, chromosome and state
	// are the same variant.
	Match interval.MatchOpts
	// Parallelism is the number of partitions merged concurrently.  Values
	// <= 1 merge sequentially.
	Parallelism int
}

// DefaultOpts merges calls sharing at least one base, sequentially.
var DefaultOpts = Opts{
	Match:       interval.DefaultMatchOpts, // -min-overlap-fraction, -boundary-tolerance
	Parallelism: 1,                         // -parallelism
}

// Validate checks the options.  The error, if any, is of kind
// errors.Precondition.
func (o Opts) Validate() error {
	if err := o.Match.Validate(); err != nil {
		return err
	}
	if o.Parallelism < 0 {
		return errors.E(errors.Precondition, fmt.Sprintf("parallelism %d must be >= 0", o.Parallelism))
	}
	return nil
}
