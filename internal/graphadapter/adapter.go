package graphadapter

import (
	"fmt"
	"log/slog"
)

// NodeRecord is a label + identity + property bag ready to merge.
type NodeRecord struct {
	Label string
	ID    string
	Props map[string]any
}

// RelationshipRecord is a typed edge between two identified nodes.
type RelationshipRecord struct {
	Type      string
	FromLabel string
	FromID    string
	ToLabel   string
	ToID      string
	Props     map[string]any
}

// Config configures a GraphAdapter.
type Config struct {
	Logger *slog.Logger
}

// GraphAdapter is the Graph Adapter component (C3): idempotent upserts,
// batched writes, vector index lifecycle, and read-side traversals over a
// Neo4j-compatible backend.
type GraphAdapter struct {
	opener SessionOpener
	log    *slog.Logger
}

// New builds a GraphAdapter over the given SessionOpener.
func New(opener SessionOpener, cfg Config) *GraphAdapter {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &GraphAdapter{opener: opener, log: log}
}

// sanitizeRelType uppercases and charset-filters a dynamic relationship
// type before it is interpolated into Cypher, defending against injection
// via a crafted relation name (e.g. the dynamic CHANGED{type} edge).
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 32
		}
	}
	return string(safe)
}

// sanitizeLabel applies the same charset filter to node labels, which are
// also interpolated directly into Cypher (Neo4j has no parameter syntax for
// labels or relationship types). Labels keep their case (the schema uses
// CamelCase labels such as Articulo); an empty result becomes "Node".
func sanitizeLabel(l string) string {
	safe := make([]byte, 0, len(l))
	for i := range l {
		c := l[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "Node"
	}
	return string(safe)
}

// sanitizePropertyName charset-filters a dynamic property name before
// interpolation, without the uppercasing sanitizeRelType applies (property
// names are case-sensitive, unlike the pipeline's UPPER_SNAKE relation
// type convention).
func sanitizePropertyName(p string) string {
	safe := make([]byte, 0, len(p))
	for i := range p {
		c := p[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "id"
	}
	return string(safe)
}

func mergeNodeCypher(label string) string {
	return fmt.Sprintf(`MERGE (n:%s {id: $id}) SET n += $props`, sanitizeLabel(label))
}

func mergeRelCypher(fromLabel, toLabel, relType string) string {
	return fmt.Sprintf(
		`MATCH (a:%s {id: $fromID}), (b:%s {id: $toID})
		 MERGE (a)-[r:%s]->(b)
		 SET r += $props`,
		sanitizeLabel(fromLabel), sanitizeLabel(toLabel), sanitizeRelType(relType),
	)
}
