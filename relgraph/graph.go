// Package relgraph builds the relation graph of a merged CNV table.  Nodes
// are samples or families; an undirected edge joins two nodes of different
// families whose merged records overlap on the same chromosome with the same
// copy state.  The graph is exported to GraphML, Cytoscape JSON or a Neo4j
// database for rendering elsewhere.
package relgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cnv/cnv"
	"github.com/grailbio/cnv/interval"
)

// NodeKind selects what the nodes of the graph stand for.
type NodeKind uint8

const (
	// NodeSample makes one node per sample.
	NodeSample NodeKind = iota
	// NodeFamily makes one node per family.
	NodeFamily
)

func (k NodeKind) String() string {
	if k == NodeFamily {
		return "family"
	}
	return "sample"
}

// ParseNodeKind parses "sample" or "family".
func ParseNodeKind(s string) (NodeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sample", "samples":
		return NodeSample, nil
	case "family", "families":
		return NodeFamily, nil
	}
	return NodeSample, errors.E(errors.Precondition, fmt.Sprintf("unknown node kind %q, want sample or family", s))
}

// Opts configures Build.
type Opts struct {
	Nodes NodeKind
	// MinOverlapFraction is the smallest interval.OverlapFraction of two
	// records that still relates them.
	MinOverlapFraction float64
	// Parallelism bounds the number of partitions swept concurrently.
	Parallelism int
}

// DefaultOpts relates samples whose records share at least one base.
var DefaultOpts = Opts{
	Nodes:              NodeSample,
	MinOverlapFraction: interval.AnyOverlap,
	Parallelism:        1,
}

// Validate checks the options.
func (o Opts) Validate() error {
	if o.Nodes != NodeSample && o.Nodes != NodeFamily {
		return errors.E(errors.Precondition, fmt.Sprintf("unknown node kind %d", o.Nodes))
	}
	if o.Parallelism < 0 {
		return errors.E(errors.Precondition, fmt.Sprintf("parallelism must be non-negative, but found %d", o.Parallelism))
	}
	return interval.MatchOpts{MinOverlapFraction: o.MinOverlapFraction}.Validate()
}

// Node is a vertex of the graph.
type Node struct {
	ID     string
	Family string
	// Affected is the status of a sample node, and Unknown for family nodes.
	Affected cnv.AffectedStatus
	// Records is the number of merged records the node takes part in.
	Records int
}

// Edge relates two nodes, From < To, through a pair of overlapping records.
type Edge struct {
	From, To string
	Overlap  interval.Interval
	State    cnv.CopyState
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -- %s %v %v", e.From, e.To, e.Overlap, e.State)
}

// Compare orders edges by endpoints, then overlap and state.
func (e Edge) Compare(other llrb.Comparable) int {
	o := other.(Edge)
	if c := strings.Compare(e.From, o.From); c != 0 {
		return c
	}
	if c := strings.Compare(e.To, o.To); c != 0 {
		return c
	}
	if c := interval.Compare(e.Overlap, o.Overlap); c != 0 {
		return c
	}
	return int(e.State) - int(o.State)
}

// Graph is the output of Build.  Nodes are sorted by ID, Edges by Compare.
type Graph struct {
	Kind  NodeKind
	Nodes []Node
	Edges []Edge
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	i := sort.Search(len(g.Nodes), func(i int) bool { return g.Nodes[i].ID >= id })
	if i < len(g.Nodes) && g.Nodes[i].ID == id {
		return g.Nodes[i], true
	}
	return Node{}, false
}

// Degree returns the number of edges incident on each node.
func (g *Graph) Degree() map[string]int {
	d := map[string]int{}
	for _, e := range g.Edges {
		d[e.From]++
		d[e.To]++
	}
	return d
}

type partitionKey struct {
	chrom string
	state cnv.CopyState
}

// nodeIDs returns the nodes a record stands for.
func nodeIDs(m *cnv.MergedRecord, kind NodeKind) []string {
	if kind == NodeFamily {
		return []string{m.FamilyID}
	}
	return m.SourceSampleIDs
}

// sweep returns the edges between the records of one partition, which must
// be sorted by start.
func sweep(records []*cnv.MergedRecord, opts Opts) []Edge {
	var (
		active []*cnv.MergedRecord
		edges  []Edge
	)
	for _, m := range records {
		iv := m.Interval()
		n := 0
		for _, a := range active {
			if a.End >= iv.Start {
				active[n] = a
				n++
			}
		}
		active = active[:n]
		for _, a := range active {
			if a.FamilyID == m.FamilyID {
				continue
			}
			if interval.OverlapFraction(a.Interval(), iv) < opts.MinOverlapFraction {
				continue
			}
			overlap, _ := interval.Intersect(a.Interval(), iv)
			for _, x := range nodeIDs(a, opts.Nodes) {
				for _, y := range nodeIDs(m, opts.Nodes) {
					if x == y || (opts.Nodes == NodeSample && (m.HasSource(x) || a.HasSource(y))) {
						continue
					}
					from, to := x, y
					if to < from {
						from, to = to, from
					}
					edges = append(edges, Edge{From: from, To: to, Overlap: overlap, State: m.State})
				}
			}
		}
		active = append(active, m)
	}
	return edges
}

// Build derives the relation graph of merged.  samples supplies the affected
// status of sample nodes and may be nil.  The result does not depend on the
// order of merged.
func Build(merged []cnv.MergedRecord, samples cnv.Samples, opts Opts) (Graph, error) {
	if err := opts.Validate(); err != nil {
		return Graph{}, err
	}
	sorted := append([]cnv.MergedRecord(nil), merged...)
	cnv.SortMerged(sorted)

	g := Graph{Kind: opts.Nodes}
	nodes := map[string]*Node{}
	parts := map[partitionKey][]*cnv.MergedRecord{}
	var keys []partitionKey
	for i := range sorted {
		m := &sorted[i]
		if err := m.Validate(); err != nil {
			return Graph{}, err
		}
		for _, id := range nodeIDs(m, opts.Nodes) {
			n, ok := nodes[id]
			if !ok {
				n = &Node{ID: id, Family: m.FamilyID}
				if s, ok := samples[id]; ok && opts.Nodes == NodeSample {
					n.Affected = s.Affected
				}
				nodes[id] = n
			}
			if n.Family != m.FamilyID {
				return Graph{}, cnv.IntegrityError(*m, fmt.Sprintf("sample %s also belongs to family %s", id, n.Family))
			}
			n.Records++
		}
		k := partitionKey{m.Chrom, m.State}
		if _, ok := parts[k]; !ok {
			keys = append(keys, k)
		}
		parts[k] = append(parts[k], m)
	}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, *n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	edges := make([][]Edge, len(keys))
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	err := traverse.Limit(parallelism).Each(len(keys), func(i int) error {
		records := parts[keys[i]]
		sort.SliceStable(records, func(a, b int) bool { return records[a].Start < records[b].Start })
		edges[i] = sweep(records, opts)
		log.Debug.Printf("graph: %s %v: %d records, %d edges", keys[i].chrom, keys[i].state, len(records), len(edges[i]))
		return nil
	})
	if err != nil {
		return Graph{}, err
	}

	// Two record pairs may relate the same nodes through the same overlap;
	// the tree keeps one edge for them.
	set := llrb.Tree{}
	for _, part := range edges {
		for _, e := range part {
			set.Insert(e)
		}
	}
	g.Edges = make([]Edge, 0, set.Len())
	set.Do(func(c llrb.Comparable) bool {
		g.Edges = append(g.Edges, c.(Edge))
		return false
	})
	log.Printf("Stats: graph: %d merged records, %d %s nodes, %d edges", len(sorted), len(g.Nodes), opts.Nodes, len(g.Edges))
	return g, nil
}
