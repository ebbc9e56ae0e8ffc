package casecontrol

import (
	"math"

	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
	"gonum.org/v1/gonum/stat/distuv"
)

// Association is the case/control contingency of one merged record within
// its family.  A sample is positive if it has a raw call of the record's
// state overlapping the record.  Samples of unknown status are not counted.
type Association struct {
	Merged cnv.MergedRecord
	// Positive lists the positive samples, sorted.
	Positive         []string
	PositiveCases    int
	NegativeCases    int
	PositiveControls int
	NegativeControls int
	// ChiSquare is the Yates-corrected chi-squared statistic of the 2x2 table
	// and P its p-value (one degree of freedom).
	ChiSquare float64
	P         float64
}

// ChiSquare2x2 runs a chi-squared test, with Yates' continuity correction,
// on the table
//
//	a b
//	c d
//
// If a row or column sums to zero the test is undefined and the result is
// (0, 1).
func ChiSquare2x2(a, b, c, d int) (chi2, p float64) {
	obs := [4]float64{float64(a), float64(b), float64(c), float64(d)}
	rows := [2]float64{obs[0] + obs[1], obs[2] + obs[3]}
	cols := [2]float64{obs[0] + obs[2], obs[1] + obs[3]}
	n := rows[0] + rows[1]
	if n == 0 || rows[0] == 0 || rows[1] == 0 || cols[0] == 0 || cols[1] == 0 {
		return 0, 1
	}
	for i, o := range obs {
		e := rows[i/2] * cols[i%2] / n
		diff := math.Abs(o - e)
		diff -= math.Min(0.5, diff)
		chi2 += diff * diff / e
	}
	if chi2 == 0 {
		return 0, 1
	}
	return chi2, distuv.ChiSquared{K: 1}.Survival(chi2)
}

// Significance computes the Association of every merged record.  samples
// supplies each family's cases and controls, raw the calls that make samples
// positive.  The result is in canonical merged-record order.
func Significance(merged []cnv.MergedRecord, raw []cnv.Record, samples cnv.Samples) ([]Association, error) {
	families := samples.Families()
	byFamily, err := indexBy(len(raw), func(i int) (string, interval.Interval) {
		return raw[i].FamilyID, raw[i].Interval()
	})
	if err != nil {
		return nil, err
	}
	sorted := append([]cnv.MergedRecord(nil), merged...)
	cnv.SortMerged(sorted)

	out := make([]Association, len(sorted))
	for i, m := range sorted {
		a := Association{Merged: m}
		positive := map[string]bool{}
		if x, ok := byFamily[m.FamilyID]; ok {
			for _, k := range x.Overlapping(m.Interval()) {
				if raw[k].State == m.State {
					positive[raw[k].SampleID] = true
				}
			}
		}
		for _, id := range families[m.FamilyID] {
			s := samples[id]
			switch {
			case s.Affected == cnv.Case && positive[id]:
				a.PositiveCases++
			case s.Affected == cnv.Case:
				a.NegativeCases++
			case s.Affected == cnv.Control && positive[id]:
				a.PositiveControls++
			case s.Affected == cnv.Control:
				a.NegativeControls++
			}
			if positive[id] {
				a.Positive = append(a.Positive, id)
			}
		}
		a.ChiSquare, a.P = ChiSquare2x2(a.PositiveCases, a.PositiveControls, a.NegativeCases, a.NegativeControls)
		out[i] = a
	}
	return out, nil
}
