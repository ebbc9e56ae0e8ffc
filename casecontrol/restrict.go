package casecontrol

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
)

// indexBy indexes n intervals, with payloads 0 to n-1, by a key such as the
// family id.
func indexBy(n int, at func(i int) (string, interval.Interval)) (map[string]*interval.Index, error) {
	idx := map[string]*interval.Index{}
	for i := 0; i < n; i++ {
		key, iv := at(i)
		x, ok := idx[key]
		if !ok {
			x = interval.NewIndex()
			idx[key] = x
		}
		if err := x.Insert(iv, i); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Restrict selects the part of a merged table and its raw calls that Detect
// should see when only the records accepted by keep are of interest.  It
// returns the accepted records and calls, plus every record and call
// connected to them through a chain of overlapping records of the same
// family.  A merged record thus always comes with the calls it was built
// from, and a call with the records it overlaps, so that a consistent pair
// of tables stays consistent.  Input order is preserved.
func Restrict(merged []cnv.MergedRecord, raw []cnv.Record, keep func(interval.Interval) bool) ([]cnv.MergedRecord, []cnv.Record, error) {
	mergedIdx, err := indexBy(len(merged), func(i int) (string, interval.Interval) {
		return merged[i].FamilyID, merged[i].Interval()
	})
	if err != nil {
		return nil, nil, err
	}
	rawIdx, err := indexBy(len(raw), func(i int) (string, interval.Interval) {
		return raw[i].FamilyID, raw[i].Interval()
	})
	if err != nil {
		return nil, nil, err
	}

	type item struct {
		merged bool
		i      int
	}
	var (
		keptMerged = make([]bool, len(merged))
		keptRaw    = make([]bool, len(raw))
		stack      []item
	)
	for i, m := range merged {
		if keep(m.Interval()) {
			keptMerged[i] = true
			stack = append(stack, item{true, i})
		}
	}
	for i, r := range raw {
		if keep(r.Interval()) {
			keptRaw[i] = true
			stack = append(stack, item{false, i})
		}
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.merged {
			m := merged[it.i]
			if x := rawIdx[m.FamilyID]; x != nil {
				for _, j := range x.Overlapping(m.Interval()) {
					if !keptRaw[j] {
						keptRaw[j] = true
						stack = append(stack, item{false, j})
					}
				}
			}
			continue
		}
		r := raw[it.i]
		if x := mergedIdx[r.FamilyID]; x != nil {
			for _, j := range x.Overlapping(r.Interval()) {
				if !keptMerged[j] {
					keptMerged[j] = true
					stack = append(stack, item{true, j})
				}
			}
		}
	}

	var (
		outMerged []cnv.MergedRecord
		outRaw    []cnv.Record
	)
	for i, ok := range keptMerged {
		if ok {
			outMerged = append(outMerged, merged[i])
		}
	}
	for i, ok := range keptRaw {
		if ok {
			outRaw = append(outRaw, raw[i])
		}
	}
	log.Debug.Printf("restrict: kept %d of %d merged records, %d of %d calls",
		len(outMerged), len(merged), len(outRaw), len(raw))
	return outMerged, outRaw, nil
}
