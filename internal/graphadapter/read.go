package graphadapter

import (
	"fmt"

	"context"
)

// VectorSearchResult is a single k-NN hit against the graph's vector index.
type VectorSearchResult struct {
	ID    string
	Score float64
	Props map[string]any
}

// GetNode fetches a single node's properties by label and id.
func (g *GraphAdapter) GetNode(ctx context.Context, label, id string) (map[string]any, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(`MATCH (n:%s {id: $id}) RETURN n`, sanitizeLabel(label))
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("graphadapter: get node %s/%s: %w", label, id, err)
	}
	if !res.Next(ctx) {
		return nil, fmt.Errorf("graphadapter: node %s/%s not found", label, id)
	}
	return recordNodeProps(res.Record(), "n")
}

// VectorSearch runs a k-NN cosine similarity query against the named vector
// index, returning the topK nearest node neighbors.
func (g *GraphAdapter) VectorSearch(ctx context.Context, indexName string, embedding []float32, topK int) ([]VectorSearchResult, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `CALL db.index.vector.queryNodes($indexName, $topK, $embedding)
	           YIELD node, score
	           RETURN node, score`
	res, err := sess.Run(ctx, cypher, map[string]any{
		"indexName": indexName,
		"topK":      topK,
		"embedding": embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("graphadapter: vector search %s: %w", indexName, err)
	}

	var out []VectorSearchResult
	for res.Next(ctx) {
		rec := res.Record()
		props, err := recordNodeProps(rec, "node")
		if err != nil {
			return nil, err
		}
		scoreVal, _ := rec.Get("score")
		score, _ := scoreVal.(float64)
		id, _ := props["id"].(string)
		out = append(out, VectorSearchResult{ID: id, Score: score, Props: props})
	}
	return out, nil
}

// KeywordSearch runs a full-text CONTAINS match over a node's text property,
// the lexical complement to VectorSearch.
func (g *GraphAdapter) KeywordSearch(ctx context.Context, label, property, query string, limit int) ([]VectorSearchResult, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (n:%s) WHERE toLower(n.%s) CONTAINS toLower($query) RETURN n LIMIT $limit`,
		sanitizeLabel(label), sanitizePropertyName(property),
	)
	res, err := sess.Run(ctx, cypher, map[string]any{"query": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("graphadapter: keyword search %s.%s: %w", label, property, err)
	}

	var out []VectorSearchResult
	for res.Next(ctx) {
		props, err := recordNodeProps(res.Record(), "n")
		if err != nil {
			return nil, err
		}
		id, _ := props["id"].(string)
		out = append(out, VectorSearchResult{ID: id, Props: props})
	}
	return out, nil
}

// TraverseByPath walks the hierarchy containment edges (child -PART_OF->
// parent) from a content-tree node down to its descendants, to the
// requested depth. A Normativa node reaches its tree through HAS_CONTENT,
// not PART_OF, so a whole document is walked from its tree root (Raiz).
func (g *GraphAdapter) TraverseByPath(ctx context.Context, rootLabel, rootID string, maxDepth int) ([]map[string]any, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (root:%s {id: $id})<-[:PART_OF*1..%d]-(n)
		 RETURN DISTINCT n`,
		sanitizeLabel(rootLabel), maxDepth,
	)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": rootID})
	if err != nil {
		return nil, fmt.Errorf("graphadapter: traverse by path from %s/%s: %w", rootLabel, rootID, err)
	}
	return collectNodeProps(ctx, res, "n")
}

// TraverseVersionChain follows PREVIOUS_VERSION/NEXT_VERSION edges outward from
// an article to recover its full version history.
func (g *GraphAdapter) TraverseVersionChain(ctx context.Context, articleID string) ([]map[string]any, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (a:Articulo {id: $id})-[:PREVIOUS_VERSION|NEXT_VERSION*0..]-(v:Articulo)
	           RETURN DISTINCT v`
	res, err := sess.Run(ctx, cypher, map[string]any{"id": articleID})
	if err != nil {
		return nil, fmt.Errorf("graphadapter: traverse version chain for %s: %w", articleID, err)
	}
	return collectNodeProps(ctx, res, "v")
}

// TraverseReferences follows outgoing REFERS_TO edges from an article to
// the articles it cites.
func (g *GraphAdapter) TraverseReferences(ctx context.Context, articleID string) ([]map[string]any, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (a:Articulo {id: $id})-[:REFERS_TO]->(t:Articulo)
	           RETURN t`
	res, err := sess.Run(ctx, cypher, map[string]any{"id": articleID})
	if err != nil {
		return nil, fmt.Errorf("graphadapter: traverse references for %s: %w", articleID, err)
	}
	return collectNodeProps(ctx, res, "t")
}

// ArticleSnapshot is a minimal, diff-shaped view of a previously-persisted
// article node: just enough to re-derive domain.Node's Type/Name/Text for
// workers.DiffVersions, without this package importing the domain package.
type ArticleSnapshot struct {
	Name     string
	Text     string
	NodeType string // the tag domain.NodeType.String() produced at save time
}

// LoadArticleSnapshots fetches every article persisted under docID's
// content tree, for diffing against a freshly parsed re-ingest of the same
// document. found is false when docID has no Normativa node yet (first
// ingest); found is true with a possibly-empty snapshot slice otherwise.
func (g *GraphAdapter) LoadArticleSnapshots(ctx context.Context, docID string) ([]ArticleSnapshot, bool, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Normativa {id: $docID})-[:HAS_CONTENT]->(root)
	           OPTIONAL MATCH (a:Articulo)-[:PART_OF*1..50]->(root)
	           RETURN a`
	res, err := sess.Run(ctx, cypher, map[string]any{"docID": docID})
	if err != nil {
		return nil, false, fmt.Errorf("graphadapter: load article snapshots %s: %w", docID, err)
	}

	var out []ArticleSnapshot
	found := false
	for res.Next(ctx) {
		found = true
		val, ok := res.Record().Get("a")
		if !ok || val == nil {
			continue
		}
		props, ok := val.(map[string]any)
		if !ok {
			continue
		}
		name, _ := props["name"].(string)
		text, _ := props["text"].(string)
		nodeType, _ := props["node_type"].(string)
		out = append(out, ArticleSnapshot{Name: name, Text: text, NodeType: nodeType})
	}
	return out, found, nil
}

// FindArticleByName resolves an article's graph id by its document-local
// name within one document's content tree, the lookup the bulk reference
// linker needs since a parsed citation only carries a target document id
// and a human article name/number, never the target's internal node id.
func (g *GraphAdapter) FindArticleByName(ctx context.Context, docID, name string) (string, bool, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Normativa {id: $docID})-[:HAS_CONTENT]->(root)
	           MATCH (a:Articulo {name: $name})-[:PART_OF*1..50]->(root)
	           RETURN a.id AS id LIMIT 1`
	res, err := sess.Run(ctx, cypher, map[string]any{"docID": docID, "name": name})
	if err != nil {
		return "", false, fmt.Errorf("graphadapter: find article %s/%s: %w", docID, name, err)
	}
	if !res.Next(ctx) {
		return "", false, nil
	}
	val, ok := res.Record().Get("id")
	if !ok {
		return "", false, nil
	}
	id, _ := val.(string)
	return id, id != "", nil
}

func collectNodeProps(ctx context.Context, res CypherResult, key string) ([]map[string]any, error) {
	var out []map[string]any
	for res.Next(ctx) {
		props, err := recordNodeProps(res.Record(), key)
		if err != nil {
			return nil, err
		}
		out = append(out, props)
	}
	return out, nil
}

// recordNodeProps extracts a node's property map from a record field. The
// session layer unwraps neo4j's dbtype.Node into a plain map, so both the
// real driver and a test double's map[string]any land here identically.
func recordNodeProps(rec Record, key string) (map[string]any, error) {
	val, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("graphadapter: record missing field %q", key)
	}
	props, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graphadapter: unsupported record field type %T for %q", val, key)
	}
	return props, nil
}
