package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boe-ingest/pipeline/internal/domain"
	"github.com/boe-ingest/pipeline/internal/graphadapter"
)

// GraphWriter is the subset of graphadapter.GraphAdapter the Save worker
// needs, narrowed so tests can inject a fake instead of a real adapter.
type GraphWriter interface {
	MergeNode(ctx context.Context, n graphadapter.NodeRecord) error
	BatchMergeNodes(ctx context.Context, nodes []graphadapter.NodeRecord) error
	BatchMergeRelationships(ctx context.Context, rels []graphadapter.RelationshipRecord) error
}

// VectorMirror optionally mirrors article embeddings into a sidecar vector
// store alongside the graph's own index (see graphadapter.VectorMirror).
// A nil VectorMirror disables mirroring entirely.
type VectorMirror interface {
	Upsert(ctx context.Context, points []graphadapter.MirrorPoint)
}

// SaveWorker persists one EmbeddedDocument through a GraphWriter, in the
// exact order spec.md §4's Save Workers section prescribes.
type SaveWorker struct {
	graph  GraphWriter
	mirror VectorMirror
}

// NewSaveWorker builds a SaveWorker with no vector mirror.
func NewSaveWorker(graph GraphWriter) *SaveWorker {
	return &SaveWorker{graph: graph}
}

// NewSaveWorkerWithMirror builds a SaveWorker that also mirrors article
// embeddings into mirror after a successful graph write.
func NewSaveWorkerWithMirror(graph GraphWriter, mirror VectorMirror) *SaveWorker {
	return &SaveWorker{graph: graph, mirror: mirror}
}

func nodeGraphID(docID string, nodeID int) string {
	return fmt.Sprintf("%s:%d", docID, nodeID)
}

// Run writes doc's document node, dictionary relationships, content tree,
// version chains, and change events, returning the resulting DocumentResult.
func (w *SaveWorker) Run(ctx context.Context, doc *EmbeddedDocument) (DocumentResult, error) {
	start := time.Now()
	result := DocumentResult{LawID: doc.LawID}

	// 1. Document node.
	docProps := map[string]any{
		"titulo":       doc.Doc.Metadata.Titulo,
		"fecha_pub":    doc.Doc.Metadata.FechaPub.Format("2006-01-02"),
		"rango":        doc.Doc.Metadata.Rango,
		"departamento": doc.Doc.Metadata.Departamento,
	}
	if err := w.graph.MergeNode(ctx, graphadapter.NodeRecord{Label: "Normativa", ID: doc.Doc.ID, Props: docProps}); err != nil {
		return result, fmt.Errorf("%w: document node: %v", domain.ErrGraphWrite, err)
	}
	result.NodesCreated++

	// 2. Dictionary relationships.
	dictRels := dictionaryRelationships(doc.Doc)
	if err := w.graph.BatchMergeRelationships(ctx, dictRels); err != nil {
		return result, fmt.Errorf("%w: dictionary relationships: %v", domain.ErrGraphWrite, err)
	}
	result.RelationshipsCreated += len(dictRels)

	// 3. Content tree, depth-first.
	nodes, partOf, rootID := contentTreeRecords(doc.Doc)
	if err := w.graph.BatchMergeNodes(ctx, nodes); err != nil {
		return result, fmt.Errorf("%w: content tree nodes: %v", domain.ErrGraphWrite, err)
	}
	result.NodesCreated += len(nodes)

	hasContent := graphadapter.RelationshipRecord{
		Type: "HAS_CONTENT", FromLabel: "Normativa", FromID: doc.Doc.ID, ToLabel: "Raiz", ToID: rootID,
	}
	partOf = append(partOf, hasContent)
	if err := w.graph.BatchMergeRelationships(ctx, partOf); err != nil {
		return result, fmt.Errorf("%w: part_of relationships: %v", domain.ErrGraphWrite, err)
	}
	result.RelationshipsCreated += len(partOf)

	// 4. Version chains.
	versionRels := versionChainRelationships(doc.Doc)
	if err := w.graph.BatchMergeRelationships(ctx, versionRels); err != nil {
		return result, fmt.Errorf("%w: version chain relationships: %v", domain.ErrGraphWrite, err)
	}
	result.RelationshipsCreated += len(versionRels)

	// 5. Change events.
	eventNodes, eventRels := changeEventRecords(doc.Doc, doc.ChangeEvents)
	if len(eventNodes) > 0 {
		if err := w.graph.BatchMergeNodes(ctx, eventNodes); err != nil {
			return result, fmt.Errorf("%w: change event nodes: %v", domain.ErrGraphWrite, err)
		}
		result.NodesCreated += len(eventNodes)
		if err := w.graph.BatchMergeRelationships(ctx, eventRels); err != nil {
			return result, fmt.Errorf("%w: change event relationships: %v", domain.ErrGraphWrite, err)
		}
		result.RelationshipsCreated += len(eventRels)
	}

	if w.mirror != nil {
		w.mirror.Upsert(ctx, mirrorPoints(doc.Doc))
	}

	result.Success = true
	result.ArticlesCount = len(doc.Doc.ContentTree.Articles())
	result.ParseDuration = doc.ParseDuration
	result.EmbedDuration = doc.EmbedDuration
	result.SaveDuration = time.Since(start)
	return result, nil
}

func dictionaryRelationships(doc *domain.Document) []graphadapter.RelationshipRecord {
	var rels []graphadapter.RelationshipRecord
	if doc.Metadata.Rango != "" {
		rels = append(rels, graphadapter.RelationshipRecord{
			Type: "HAS_RANK", FromLabel: "Normativa", FromID: doc.ID, ToLabel: "Rango", ToID: doc.Metadata.Rango,
		})
	}
	if doc.Metadata.Departamento != "" {
		rels = append(rels, graphadapter.RelationshipRecord{
			Type: "ISSUED_BY", FromLabel: "Normativa", FromID: doc.ID, ToLabel: "Departamento", ToID: doc.Metadata.Departamento,
		})
	}
	for _, m := range doc.Metadata.Materias {
		rels = append(rels, graphadapter.RelationshipRecord{
			Type: "HAS_SUBJECT", FromLabel: "Normativa", FromID: doc.ID, ToLabel: "Materia", ToID: m,
		})
	}
	return rels
}

// contentTreeRecords walks the tree depth-first, building one NodeRecord
// per node and one PART_OF RelationshipRecord per child->parent edge. It
// returns the root's graph id separately since the root attaches to the
// document via HAS_CONTENT rather than PART_OF.
func contentTreeRecords(doc *domain.Document) (nodes []graphadapter.NodeRecord, partOf []graphadapter.RelationshipRecord, rootID string) {
	tree := doc.ContentTree
	rootID = nodeGraphID(doc.ID, tree.Node(tree.Root()).ID)

	var walk func(h domain.NodeHandle)
	walk = func(h domain.NodeHandle) {
		n := tree.Node(h)
		id := nodeGraphID(doc.ID, n.ID)
		props := map[string]any{
			"name": n.Name,
			"text": n.Text,
		}
		if n.Type.IsArticle() {
			props["full_text"] = buildFullText(tree, h)
			props["path"] = buildHierarchyContext(tree, h)
			props["node_type"] = n.Type.String()
			if len(n.Embedding) > 0 {
				props["embedding"] = n.Embedding
			}
		}
		nodes = append(nodes, graphadapter.NodeRecord{Label: graphLabel(n.Type), ID: id, Props: props})

		for _, c := range n.Children {
			child := tree.Node(c)
			partOf = append(partOf, graphadapter.RelationshipRecord{
				Type: "PART_OF", FromLabel: graphLabel(child.Type), FromID: nodeGraphID(doc.ID, child.ID),
				ToLabel: graphLabel(n.Type), ToID: id,
			})
			walk(c)
		}
	}
	walk(tree.Root())
	return nodes, partOf, rootID
}

// mirrorPoints collects one MirrorPoint per embedded article, keyed by a
// deterministic UUID derived from the article's graph id so repeated
// ingests of the same article overwrite the same sidecar point instead of
// accumulating duplicates.
func mirrorPoints(doc *domain.Document) []graphadapter.MirrorPoint {
	tree := doc.ContentTree
	var points []graphadapter.MirrorPoint
	for _, h := range tree.Articles() {
		n := tree.Node(h)
		if len(n.Embedding) == 0 {
			continue
		}
		graphID := nodeGraphID(doc.ID, n.ID)
		points = append(points, graphadapter.MirrorPoint{
			ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(graphID)).String(),
			Embedding: n.Embedding,
			Payload:   map[string]string{"law_id": doc.ID, "article": n.Name, "graph_id": graphID},
		})
	}
	return points
}

func versionChainRelationships(doc *domain.Document) []graphadapter.RelationshipRecord {
	var rels []graphadapter.RelationshipRecord
	tree := doc.ContentTree
	for _, h := range tree.Articles() {
		n := tree.Node(h)
		if n.PrevVersion == 0 {
			continue
		}
		curID := nodeGraphID(doc.ID, n.ID)
		prevID := nodeGraphID(doc.ID, tree.Node(n.PrevVersion).ID)
		rels = append(rels,
			graphadapter.RelationshipRecord{Type: "PREVIOUS_VERSION", FromLabel: "Articulo", FromID: curID, ToLabel: "Articulo", ToID: prevID},
			graphadapter.RelationshipRecord{Type: "NEXT_VERSION", FromLabel: "Articulo", FromID: prevID, ToLabel: "Articulo", ToID: curID},
		)
	}
	return rels
}

// changeEventRecords builds one ChangeEvent node per event plus its
// INTRODUCED_CHANGE/MODIFIES/CHANGED edges, the type on the CHANGED edge
// carrying the winning removed>modified>added precedence already resolved
// by ChangeEvent.RecordChange. AffectedArticleID keys are structural
// (type:name) identities per DiffVersions, so they are resolved against
// target's own content tree to find the article's graph id; an article
// removed in this version (key no longer present) is skipped since there
// is no node left in target to attach the edge to.
func changeEventRecords(target *domain.Document, events []*domain.ChangeEvent) ([]graphadapter.NodeRecord, []graphadapter.RelationshipRecord) {
	var nodes []graphadapter.NodeRecord
	var rels []graphadapter.RelationshipRecord
	if len(events) == 0 {
		return nodes, rels
	}

	idByKey := make(map[string]string)
	for _, h := range target.ContentTree.Articles() {
		n := target.ContentTree.Node(h)
		idByKey[articleKey(n)] = nodeGraphID(target.ID, n.ID)
	}

	for _, e := range events {
		nodes = append(nodes, graphadapter.NodeRecord{
			Label: "ChangeEvent", ID: e.ID,
			Props: map[string]any{"source_doc_id": e.SourceDocID, "target_doc_id": e.TargetDocID},
		})
		rels = append(rels,
			graphadapter.RelationshipRecord{Type: "INTRODUCED_CHANGE", FromLabel: "Normativa", FromID: e.SourceDocID, ToLabel: "ChangeEvent", ToID: e.ID},
			graphadapter.RelationshipRecord{Type: "MODIFIES", FromLabel: "ChangeEvent", FromID: e.ID, ToLabel: "Normativa", ToID: target.ID},
		)
		for key, kind := range e.AffectedArticleID {
			articleID, ok := idByKey[key]
			if !ok {
				continue
			}
			rels = append(rels, graphadapter.RelationshipRecord{
				Type: "CHANGED", FromLabel: "ChangeEvent", FromID: e.ID, ToLabel: "Articulo", ToID: articleID,
				Props: map[string]any{"type": kind.String()},
			})
		}
	}
	return nodes, rels
}
