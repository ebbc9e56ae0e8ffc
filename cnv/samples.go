package cnv

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
)

// Sample is what the raw table says about one sample.
type Sample struct {
	ID       string
	FamilyID string
	Affected AffectedStatus
	// Calls is the number of raw calls of the sample.
	Calls int
}

// Samples maps sample ids to samples.
type Samples map[string]*Sample

// NewSamples collects the samples of the raw records.  A sample listed under
// two families, or with two different known affected statuses, is an
// integrity error.
func NewSamples(records []Record) (Samples, error) {
	s := Samples{}
	for _, r := range records {
		p, ok := s[r.SampleID]
		if !ok {
			s[r.SampleID] = &Sample{ID: r.SampleID, FamilyID: r.FamilyID, Affected: r.Affected, Calls: 1}
			continue
		}
		if p.FamilyID != r.FamilyID {
			return nil, errors.E(errors.Integrity,
				fmt.Sprintf("sample %s is listed in families %s and %s (%v)", r.SampleID, p.FamilyID, r.FamilyID, r))
		}
		switch {
		case p.Affected == Unknown:
			p.Affected = r.Affected
		case r.Affected != Unknown && r.Affected != p.Affected:
			return nil, errors.E(errors.Integrity,
				fmt.Sprintf("sample %s is both %v and %v (%v)", r.SampleID, p.Affected, r.Affected, r))
		}
		p.Calls++
	}
	return s, nil
}

// Cohort returns the cohort of the given samples.  Unknown sample ids are
// ignored.
func (s Samples) Cohort(ids []string) Cohort {
	c := UnknownCohort
	for _, id := range ids {
		if p, ok := s[id]; ok {
			c = c.Add(p.Affected)
		}
	}
	return c
}

// Families returns the sample ids of every family, each list sorted.
func (s Samples) Families() map[string][]string {
	f := map[string][]string{}
	for id, p := range s {
		f[p.FamilyID] = append(f[p.FamilyID], id)
	}
	for _, ids := range f {
		sort.Strings(ids)
	}
	return f
}

// SplitReplicates separates the calls of replicate arrays.  A sample that
// was genotyped more than once has calls with several sentrix ids; the calls
// of the first sentrix id seen in input order are kept and the others are
// returned as replicates.  Calls without a sentrix id are always kept.
func SplitReplicates(records []Record) (kept, replicates []Record) {
	first := map[string]string{}
	for _, r := range records {
		if r.SentrixID == "" {
			kept = append(kept, r)
			continue
		}
		id, ok := first[r.SampleID]
		if !ok {
			first[r.SampleID] = r.SentrixID
			id = r.SentrixID
		}
		if id == r.SentrixID {
			kept = append(kept, r)
		} else {
			replicates = append(replicates, r)
		}
	}
	return kept, replicates
}
