package relgraph

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cnv/cnv"
)

type graphMLKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

var graphMLKeys = []graphMLKey{
	{"kind", "node", "kind", "string"},
	{"family", "node", "family", "string"},
	{"affected", "node", "affected", "string"},
	{"records", "node", "records", "int"},
	{"chromosome", "edge", "chromosome", "string"},
	{"start", "edge", "start", "long"},
	{"end", "edge", "end", "long"},
	{"copy_state", "edge", "copy_state", "string"},
}

// WriteGraphML writes g as an undirected GraphML graph.
func WriteGraphML(out io.Writer, g Graph) error {
	doc := graphMLDoc{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys:  graphMLKeys,
		Graph: graphMLGraph{ID: "cnv", EdgeDefault: "undirected"},
	}
	for _, n := range g.Nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{
			ID: n.ID,
			Data: []graphMLData{
				{"kind", g.Kind.String()},
				{"family", n.Family},
				{"affected", n.Affected.String()},
				{"records", fmt.Sprint(n.Records)},
			},
		})
	}
	for i, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			ID:     fmt.Sprintf("e%d", i),
			Source: e.From,
			Target: e.To,
			Data: []graphMLData{
				{"chromosome", e.Overlap.Chrom},
				{"start", fmt.Sprint(e.Overlap.Start)},
				{"end", fmt.Sprint(e.Overlap.End)},
				{"copy_state", e.State.String()},
			},
		})
	}
	if _, err := io.WriteString(out, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.E(err, "graphml")
	}
	_, err := io.WriteString(out, "\n")
	return err
}

type cytoscapeNode struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Family   string `json:"family"`
	Affected string `json:"affected"`
	Records  int    `json:"records"`
}

type cytoscapeEdge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Chrom     string `json:"chromosome"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	CopyState string `json:"copy_state"`
}

type cytoscapeNodeElement struct {
	Data cytoscapeNode `json:"data"`
}

type cytoscapeEdgeElement struct {
	Data cytoscapeEdge `json:"data"`
}

type cytoscapeDoc struct {
	Elements struct {
		Nodes []cytoscapeNodeElement `json:"nodes"`
		Edges []cytoscapeEdgeElement `json:"edges"`
	} `json:"elements"`
}

// WriteCytoscapeJSON writes g in the Cytoscape.js elements format.
func WriteCytoscapeJSON(out io.Writer, g Graph) error {
	var doc cytoscapeDoc
	doc.Elements.Nodes = make([]cytoscapeNodeElement, 0, len(g.Nodes))
	doc.Elements.Edges = make([]cytoscapeEdgeElement, 0, len(g.Edges))
	for _, n := range g.Nodes {
		doc.Elements.Nodes = append(doc.Elements.Nodes, cytoscapeNodeElement{cytoscapeNode{
			ID: n.ID, Kind: g.Kind.String(), Family: n.Family, Affected: n.Affected.String(), Records: n.Records,
		}})
	}
	for i, e := range g.Edges {
		doc.Elements.Edges = append(doc.Elements.Edges, cytoscapeEdgeElement{cytoscapeEdge{
			ID: fmt.Sprintf("e%d", i), Source: e.From, Target: e.To, Chrom: e.Overlap.Chrom,
			Start: int64(e.Overlap.Start), End: int64(e.Overlap.End), CopyState: e.State.String(),
		}})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.E(err, "cytoscape json")
	}
	return nil
}

func writeFile(ctx context.Context, path string, g Graph, fn func(io.Writer, Graph) error) error {
	out, err := cnv.Create(ctx, path)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(fn(out, g))
	e.Set(out.Close())
	return e.Err()
}

// WriteGraphMLFile writes g to path as GraphML.
func WriteGraphMLFile(ctx context.Context, path string, g Graph) error {
	return writeFile(ctx, path, g, WriteGraphML)
}

// WriteCytoscapeJSONFile writes g to path as Cytoscape JSON.
func WriteCytoscapeJSONFile(ctx context.Context, path string, g Graph) error {
	return writeFile(ctx, path, g, WriteCytoscapeJSON)
}
