package relgraph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Executor runs one Cypher query.  *Driver implements it.
type Executor interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error)
}

// Driver is a Neo4j connection.
type Driver struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewDriver connects to the Neo4j server at uri.  An empty database selects
// the server default.
func NewDriver(ctx context.Context, uri, user, password, database string) (*Driver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, errors.E(errors.Precondition, "neo4j "+uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.E(errors.Unavailable, "neo4j "+uri, err)
	}
	log.Printf("connected to neo4j at %s", uri)
	return &Driver{driver: driver, database: database}, nil
}

// ExecuteQuery implements Executor.
func (d *Driver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, err
	}
	return *result, nil
}

// Close closes the connection.
func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

const (
	neo4jIndexQuery = "CREATE INDEX cnv_node_id IF NOT EXISTS FOR (n:CNVNode) ON (n.id, n.run_id)"
	neo4jNodeQuery  = `UNWIND $rows AS row
MERGE (n:CNVNode {id: row.id, run_id: $run_id})
SET n.kind = row.kind, n.family = row.family, n.affected = row.affected, n.records = row.records`
	neo4jEdgeQuery = `UNWIND $rows AS row
MATCH (a:CNVNode {id: row.source, run_id: $run_id}), (b:CNVNode {id: row.target, run_id: $run_id})
MERGE (a)-[r:SHARES_CNV {chromosome: row.chromosome, start: row.start, end: row.end, copy_state: row.copy_state}]->(b)
SET r.run_id = $run_id`
)

// Neo4jExporter loads graphs into Neo4j.  Every node and edge of one
// exporter is tagged with its RunID, so repeated exports don't mix.
type Neo4jExporter struct {
	Executor Executor
	// RunID tags the exported nodes and edges.
	RunID string
	// BatchSize is the number of rows per query.
	BatchSize int
}

// NewNeo4jExporter creates an exporter with a fresh run id.
func NewNeo4jExporter(x Executor) *Neo4jExporter {
	return &Neo4jExporter{Executor: x, RunID: uuid.New().String(), BatchSize: 1000}
}

func (x *Neo4jExporter) batches(ctx context.Context, query string, rows []map[string]any) error {
	size := x.BatchSize
	if size <= 0 {
		size = len(rows)
	}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		params := map[string]any{"run_id": x.RunID, "rows": rows[start:end]}
		if _, err := x.Executor.ExecuteQuery(ctx, query, params); err != nil {
			return errors.E(err, fmt.Sprintf("neo4j run %s: rows %d-%d", x.RunID, start, end))
		}
	}
	return nil
}

// Export writes the nodes, then the edges, of g.
func (x *Neo4jExporter) Export(ctx context.Context, g Graph) error {
	if _, err := x.Executor.ExecuteQuery(ctx, neo4jIndexQuery, nil); err != nil {
		return errors.E(err, "neo4j index")
	}
	nodes := make([]map[string]any, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = map[string]any{
			"id":       n.ID,
			"kind":     g.Kind.String(),
			"family":   n.Family,
			"affected": n.Affected.String(),
			"records":  int64(n.Records),
		}
	}
	if err := x.batches(ctx, neo4jNodeQuery, nodes); err != nil {
		return err
	}
	edges := make([]map[string]any, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = map[string]any{
			"source":     e.From,
			"target":     e.To,
			"chromosome": e.Overlap.Chrom,
			"start":      int64(e.Overlap.Start),
			"end":        int64(e.Overlap.End),
			"copy_state": e.State.String(),
		}
	}
	if err := x.batches(ctx, neo4jEdgeQuery, edges); err != nil {
		return err
	}
	log.Printf("neo4j: run %s: exported %d nodes, %d edges", x.RunID, len(nodes), len(edges))
	return nil
}
