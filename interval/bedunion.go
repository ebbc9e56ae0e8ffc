package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInts(), except for PosType.
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// BEDUnion is a set of disjoint intervals per chromosome.  Each chromosome
// maps to a length-2N sequence, where N is the number of intervals, the
// (0-based) start position of interval #k is in element [2k] and the
// (exclusive) end position is in element [2k+1], in increasing order.
type BEDUnion struct {
	nameMap map[string][]PosType
}

// Overlaps is true iff the closed interval iv shares at least one base with
// the union.
func (u *BEDUnion) Overlaps(iv Interval) bool {
	chrIntervals := u.nameMap[iv.Chrom]
	if len(chrIntervals) == 0 {
		return false
	}
	// iv is [iv.Start-1, iv.End) in 0-based coordinates.
	idx := searchPosType(chrIntervals, iv.Start)
	if idx&1 == 1 {
		return true
	}
	return idx != len(chrIntervals) && iv.End > chrIntervals[idx]
}

// Bases returns the number of bases covered by the union.
func (u *BEDUnion) Bases() int64 {
	var n int64
	for _, chrIntervals := range u.nameMap {
		for i := 0; i+1 < len(chrIntervals); i += 2 {
			n += int64(chrIntervals[i+1] - chrIntervals[i])
		}
	}
	return n
}

func scanBEDEntries(scanner *bufio.Scanner, opts NewBEDOpts) ([]Entry, error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}
	var (
		tokens  [3][]byte
		entries []Entry
		lineIdx int
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 || curLine[0] == '#' || strings.HasPrefix(gunsafe.BytesToString(curLine), "track") {
			continue
		}
		if nToken != 3 {
			return nil, fmt.Errorf("interval.NewBEDUnion: line %d has fewer tokens than expected", lineIdx)
		}
		parsedStart, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			return nil, fmt.Errorf("interval.NewBEDUnion: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		parsedEnd, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		if parsedEnd < parsedStart || parsedEnd >= PosTypeMax {
			return nil, fmt.Errorf("interval.NewBEDUnion: invalid coordinate pair on line %d", lineIdx)
		}
		// The chromosome name must be copied: tokens point into the scanner's
		// buffer.
		entries = append(entries, Entry{
			ChrName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// NewBEDUnion loads just the intervals from a sorted (by first coordinate)
// interval-BED, merging touching/overlapping intervals and eliminating empty
// ones in the process.  Comment and track lines are skipped.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	entries, err := scanBEDEntries(bufio.NewScanner(reader), opts)
	if err != nil {
		return BEDUnion{}, err
	}
	bedUnion, err := NewBEDUnionFromEntries(entries)
	if err != nil {
		return BEDUnion{}, err
	}
	log.Printf("BED loaded, %d base(s) covered.", bedUnion.Bases())
	return bedUnion, nil
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Paths ending in .gz are decompressed.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewBEDUnion(reader, opts)
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// Interval returns e in closed, 1-based coordinates.
func (e Entry) Interval() Interval {
	return Interval{Chrom: e.ChrName, Start: e.Start0 + 1, End: e.End}
}

// ParseRegionString parses a region string of one of the forms
//
//	[contig ID]:[1-based first pos]-[last pos]
//	[contig ID]:[1-based pos]
//	[contig ID]
//
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, PosTypeMax - 1) is returned if there is no positional restriction.
// Positions may contain thousands separators, e.g. chr1:1,000-2,000.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID in %q", region)
		return
	}
	result.ChrName = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 || pos1 >= PosTypeMax {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end int
	if end, err = strconv.Atoi(endStr); err != nil {
		return
	}
	// The range is closed, so chr:5-5 is the single base 5.
	if end < start1 || end >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end)
	return
}

// ParseRegion is ParseRegionString in closed, 1-based coordinates.  A bare
// chromosome covers [1, PosTypeMax-1].
func ParseRegion(region string) (Interval, error) {
	e, err := ParseRegionString(region)
	if err != nil {
		return Interval{}, err
	}
	return e.Interval(), nil
}

// NewBEDUnionFromEntries initializes a BEDUnion from a sorted []Entry.
// Entries of one chromosome must be contiguous and sorted by start.
func NewBEDUnionFromEntries(entries []Entry) (bedUnion BEDUnion, err error) {
	bedUnion.nameMap = make(map[string][]PosType)
	prevChr := ""
	var prevStart, prevEnd PosType
	var chrIntervals []PosType
	for _, entry := range entries {
		curChr := entry.ChrName
		if entry.Start0 < 0 {
			err = fmt.Errorf("interval.NewBEDUnionFromEntries: negative start coordinate")
			return
		}
		if (entry.End < entry.Start0) || (entry.End >= PosTypeMax) {
			err = fmt.Errorf("interval.NewBEDUnionFromEntries: invalid coordinate pair [%d, %d)", entry.Start0, entry.End)
			return
		}
		if prevChr != curChr {
			if prevChr != "" {
				// Save last interval, add to map.
				if prevEnd != -1 {
					chrIntervals = append(chrIntervals, prevStart, prevEnd)
				}
				bedUnion.nameMap[prevChr] = chrIntervals
			}
			prevChr = curChr
			if _, found := bedUnion.nameMap[prevChr]; found {
				err = fmt.Errorf("interval.NewBEDUnionFromEntries: unsorted input (split chromosome %v)", curChr)
				return
			}
			chrIntervals = []PosType{}
			if entry.End == entry.Start0 {
				// Distinguish between 'mentioned' chromosomes without any
				// overlapping bases and unmentioned chromosomes.
				prevStart = -1
				prevEnd = -1
				continue
			}
			prevStart = entry.Start0
			prevEnd = entry.End
			continue
		}
		if entry.End == entry.Start0 {
			continue
		}
		if prevEnd == -1 {
			prevStart = entry.Start0
			prevEnd = entry.End
			continue
		}
		if entry.Start0 > prevEnd {
			// New interval doesn't overlap previous one, so we can save the
			// previous one.
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
			prevStart = entry.Start0
			prevEnd = entry.End
		} else {
			if entry.Start0 < prevStart {
				err = fmt.Errorf("interval.NewBEDUnionFromEntries: unsorted input")
				return
			}
			// Intervals overlap, merge them.
			if entry.End > prevEnd {
				prevEnd = entry.End
			}
		}
	}
	if prevChr != "" {
		if prevEnd != -1 {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
		}
		bedUnion.nameMap[prevChr] = chrIntervals
	}
	return
}
