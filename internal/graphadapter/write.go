package graphadapter

import (
	"context"
	"fmt"
)

// MergeNode idempotently upserts a single node.
func (g *GraphAdapter) MergeNode(ctx context.Context, n NodeRecord) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, mergeNodeCypher(n.Label), map[string]any{"id": n.ID, "props": n.Props})
	if err != nil {
		return fmt.Errorf("graphadapter: merge node %s/%s: %w", n.Label, n.ID, err)
	}
	return nil
}

// MergeRelationship idempotently upserts a single relationship between two
// existing nodes.
func (g *GraphAdapter) MergeRelationship(ctx context.Context, r RelationshipRecord) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	props := r.Props
	if props == nil {
		props = map[string]any{}
	}
	cypher := mergeRelCypher(r.FromLabel, r.ToLabel, r.Type)
	_, err := sess.Run(ctx, cypher, map[string]any{"fromID": r.FromID, "toID": r.ToID, "props": props})
	if err != nil {
		return fmt.Errorf("graphadapter: merge relationship %s %s->%s: %w", r.Type, r.FromID, r.ToID, err)
	}
	return nil
}

// BatchMergeNodes upserts many nodes in a single transaction, the way
// batched writes throughout the pipeline are expected to behave: all or
// nothing per call.
func (g *GraphAdapter) BatchMergeNodes(ctx context.Context, nodes []NodeRecord) error {
	if len(nodes) == 0 {
		return nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, n := range nodes {
			if _, err := tx.Run(ctx, mergeNodeCypher(n.Label), map[string]any{"id": n.ID, "props": n.Props}); err != nil {
				return nil, fmt.Errorf("merge node %s/%s: %w", n.Label, n.ID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graphadapter: batch merge nodes: %w", err)
	}
	return nil
}

// BatchMergeRelationships upserts many relationships in a single
// transaction.
func (g *GraphAdapter) BatchMergeRelationships(ctx context.Context, rels []RelationshipRecord) error {
	if len(rels) == 0 {
		return nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, r := range rels {
			props := r.Props
			if props == nil {
				props = map[string]any{}
			}
			cypher := mergeRelCypher(r.FromLabel, r.ToLabel, r.Type)
			if _, err := tx.Run(ctx, cypher, map[string]any{"fromID": r.FromID, "toID": r.ToID, "props": props}); err != nil {
				return nil, fmt.Errorf("merge relationship %s %s->%s: %w", r.Type, r.FromID, r.ToID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graphadapter: batch merge relationships: %w", err)
	}
	return nil
}

// coreLabels lists the node labels EnsureConstraints guards with a
// uniqueness constraint on id.
var coreLabels = []string{
	"Normativa", "Titulo", "Capitulo", "Seccion", "Articulo",
	"Materia", "Departamento", "Rango", "ChangeEvent",
}

// EnsureConstraints creates the uniqueness constraints the rest of the
// adapter's MERGE statements rely on to stay idempotent. Safe to call
// repeatedly; Neo4j's IF NOT EXISTS makes it a no-op past the first run.
func (g *GraphAdapter) EnsureConstraints(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, label := range coreLabels {
		cypher := fmt.Sprintf(
			`CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE`,
			sanitizeLabel(label),
		)
		if _, err := sess.Run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("graphadapter: ensure constraint for %s: %w", label, err)
		}
	}
	return nil
}

// CreateVectorIndex creates (or recreates) a cosine-similarity vector index
// on the given label/property, dropping any prior index of the same name
// first, matching the batch-start/batch-end index lifecycle.
func (g *GraphAdapter) CreateVectorIndex(ctx context.Context, indexName, label, property string, dim int) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	dropCypher := fmt.Sprintf(`DROP INDEX %s IF EXISTS`, sanitizeLabel(indexName))
	if _, err := sess.Run(ctx, dropCypher, nil); err != nil {
		return fmt.Errorf("graphadapter: drop vector index %s: %w", indexName, err)
	}

	createCypher := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS\n"+
			"FOR (n:%s) ON (n.%s)\n"+
			"OPTIONS {indexConfig: {\n"+
			"  `vector.dimensions`: $dim,\n"+
			"  `vector.similarity_function`: 'cosine'\n"+
			"}}",
		sanitizeLabel(indexName), sanitizeLabel(label), sanitizePropertyName(property),
	)
	if _, err := sess.Run(ctx, createCypher, map[string]any{"dim": dim}); err != nil {
		return fmt.Errorf("graphadapter: create vector index %s: %w", indexName, err)
	}
	return nil
}

// DropVectorIndex drops the named vector index if it exists, used at batch
// start to avoid indexing against a partially-written graph.
func (g *GraphAdapter) DropVectorIndex(ctx context.Context, indexName string) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(`DROP INDEX %s IF EXISTS`, sanitizeLabel(indexName))
	if _, err := sess.Run(ctx, cypher, nil); err != nil {
		return fmt.Errorf("graphadapter: drop vector index %s: %w", indexName, err)
	}
	return nil
}
