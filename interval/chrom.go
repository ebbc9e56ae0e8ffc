package interval

import (
	"strconv"
	"strings"
)

// chromRank splits a chromosome name into a sort class and a numeric rank:
// numbered autosomes first, then X, Y, M/MT, then everything else by name.
func chromRank(chrom string) (class int, num int) {
	name := chrom
	if len(name) > 3 && strings.EqualFold(name[:3], "chr") {
		name = name[3:]
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		return 0, n
	}
	switch strings.ToUpper(name) {
	case "X":
		return 1, 0
	case "Y":
		return 2, 0
	case "M", "MT":
		return 3, 0
	}
	return 4, 0
}

// CompareChrom orders chromosome names naturally: chr1 < chr2 < chr10 < chrX
// < chrY < chrM < other contigs (by name).  Names that rank equal, e.g. "1"
// and "chr1", fall back to string order so that the result is a total order.
func CompareChrom(a, b string) int {
	if a == b {
		return 0
	}
	ca, na := chromRank(a)
	cb, nb := chromRank(b)
	switch {
	case ca != cb:
		return ca - cb
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(a, b)
}

// Compare orders intervals by chromosome (CompareChrom), start, then end.
func Compare(a, b Interval) int {
	if c := CompareChrom(a.Chrom, b.Chrom); c != 0 {
		return c
	}
	switch {
	case a.Start < b.Start:
		return -1
	case a.Start > b.Start:
		return 1
	case a.End < b.End:
		return -1
	case a.End > b.End:
		return 1
	}
	return 0
}
