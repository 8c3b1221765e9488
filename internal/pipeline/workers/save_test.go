package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boe-ingest/pipeline/internal/domain"
	"github.com/boe-ingest/pipeline/internal/graphadapter"
)

type fakeGraphWriter struct {
	nodes        []graphadapter.NodeRecord
	rels         []graphadapter.RelationshipRecord
	mergeNodeErr error
	batchNodeErr error
	batchRelErr  error
}

func (f *fakeGraphWriter) MergeNode(_ context.Context, n graphadapter.NodeRecord) error {
	if f.mergeNodeErr != nil {
		return f.mergeNodeErr
	}
	f.nodes = append(f.nodes, n)
	return nil
}

func (f *fakeGraphWriter) BatchMergeNodes(_ context.Context, nodes []graphadapter.NodeRecord) error {
	if f.batchNodeErr != nil {
		return f.batchNodeErr
	}
	f.nodes = append(f.nodes, nodes...)
	return nil
}

func (f *fakeGraphWriter) BatchMergeRelationships(_ context.Context, rels []graphadapter.RelationshipRecord) error {
	if f.batchRelErr != nil {
		return f.batchRelErr
	}
	f.rels = append(f.rels, rels...)
	return nil
}

func sampleDoc() *domain.Document {
	tree := domain.NewContentTree()
	titulo := tree.AddChild(tree.Root(), domain.Node{ID: 1, Type: domain.NodeTitulo, Name: "I"})
	tree.AddChild(titulo, domain.Node{ID: 2, Type: domain.NodeArticulo, Name: "1", Text: "texto", Embedding: []float32{0.1}})

	return &domain.Document{
		ID: "BOE-A-2020-1",
		Metadata: domain.Metadata{
			Titulo:       "Ley de ejemplo",
			FechaPub:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Rango:        "LEY",
			Departamento: "MIN_HAC",
			Materias:     []string{"fiscal", "tributario"},
		},
		ContentTree: tree,
	}
}

func TestSaveWorkerWritesDocumentDictionaryAndTree(t *testing.T) {
	graph := &fakeGraphWriter{}
	w := NewSaveWorker(graph)

	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: sampleDoc()}}
	result, err := w.Run(context.Background(), embedded)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if result.ArticlesCount != 1 {
		t.Fatalf("expected 1 article, got %d", result.ArticlesCount)
	}
	// document node + 2 dictionary rels (rango, departamento) + 2 materias +
	// 3 content nodes (root, titulo, articulo) + part_of edges (2) + has_content (1)
	if result.NodesCreated != 4 {
		t.Fatalf("expected 4 nodes created (1 doc + 3 tree), got %d", result.NodesCreated)
	}
	wantRels := 2 /* rango, departamento */ + 2 /* materias */ + 2 /* part_of */ + 1 /* has_content */
	if result.RelationshipsCreated != wantRels {
		t.Fatalf("expected %d relationships, got %d", wantRels, result.RelationshipsCreated)
	}

	foundHasContent := false
	for _, r := range graph.rels {
		if r.Type == "HAS_CONTENT" {
			foundHasContent = true
		}
	}
	if !foundHasContent {
		t.Fatalf("expected a HAS_CONTENT relationship from document to root")
	}
}

type fakeMirror struct {
	points []graphadapter.MirrorPoint
}

func (f *fakeMirror) Upsert(_ context.Context, points []graphadapter.MirrorPoint) {
	f.points = append(f.points, points...)
}

func TestSaveWorkerWithMirrorUpsertsEmbeddedArticles(t *testing.T) {
	graph := &fakeGraphWriter{}
	mirror := &fakeMirror{}
	w := NewSaveWorkerWithMirror(graph, mirror)

	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: sampleDoc()}}
	result, err := w.Run(context.Background(), embedded)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if len(mirror.points) != 1 {
		t.Fatalf("expected 1 mirrored point (the embedded article), got %d", len(mirror.points))
	}
	if mirror.points[0].Payload["law_id"] != "BOE-A-2020-1" {
		t.Fatalf("expected law_id payload, got %v", mirror.points[0].Payload)
	}
}

func TestSaveWorkerWithMirrorSkipsArticlesWithoutEmbeddings(t *testing.T) {
	graph := &fakeGraphWriter{}
	mirror := &fakeMirror{}
	w := NewSaveWorkerWithMirror(graph, mirror)

	doc := sampleDoc()
	// Strip the embedding so the article should be excluded from the mirror.
	tree := doc.ContentTree
	for _, h := range tree.Articles() {
		tree.Node(h).Embedding = nil
	}

	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: doc}}
	if _, err := w.Run(context.Background(), embedded); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mirror.points) != 0 {
		t.Fatalf("expected no mirrored points, got %d", len(mirror.points))
	}
}

func TestSaveWorkerVersionChainEdges(t *testing.T) {
	graph := &fakeGraphWriter{}
	w := NewSaveWorker(graph)

	tree := domain.NewContentTree()
	firstH := tree.AddChild(tree.Root(), domain.Node{ID: 1, Type: domain.NodeArticulo, Name: "1"})
	tree.AddChild(tree.Root(), domain.Node{ID: 2, Type: domain.NodeArticulo, Name: "2", PrevVersion: firstH})

	doc := &domain.Document{ID: "D1", ContentTree: tree}
	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: doc}}

	if _, err := w.Run(context.Background(), embedded); err != nil {
		t.Fatalf("run: %v", err)
	}

	var sawNext, sawPrev bool
	for _, r := range graph.rels {
		switch r.Type {
		case "NEXT_VERSION":
			sawNext = true
		case "PREVIOUS_VERSION":
			sawPrev = true
		}
	}
	if !sawNext || !sawPrev {
		t.Fatalf("expected both NEXT_VERSION and PREVIOUS_VERSION edges, got rels=%+v", graph.rels)
	}
}

func TestSaveWorkerChangeEventsAttachToResolvedArticles(t *testing.T) {
	graph := &fakeGraphWriter{}
	w := NewSaveWorker(graph)

	doc := sampleDoc()
	event := &domain.ChangeEvent{
		ID:          domain.ChangeEventID(doc.ID, "BOE-A-2020-2"),
		SourceDocID: "BOE-A-2020-2",
		TargetDocID: doc.ID,
	}
	event.RecordChange("artículo:1", domain.ChangeModified)
	event.RecordChange("artículo:99", domain.ChangeAdded) // unresolved: no such article in target

	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: doc, ChangeEvents: []*domain.ChangeEvent{event}}}
	result, err := w.Run(context.Background(), embedded)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}

	var changedEdges int
	var sawIntroduced, sawModifies bool
	for _, r := range graph.rels {
		switch r.Type {
		case "CHANGED":
			changedEdges++
			if r.Props["type"] != "modified" {
				t.Fatalf("expected modified change type, got %v", r.Props["type"])
			}
		case "INTRODUCED_CHANGE":
			sawIntroduced = true
		case "MODIFIES":
			sawModifies = true
		}
	}
	if changedEdges != 1 {
		t.Fatalf("expected exactly 1 resolved CHANGED edge (unresolved article skipped), got %d", changedEdges)
	}
	if !sawIntroduced || !sawModifies {
		t.Fatalf("expected INTRODUCED_CHANGE and MODIFIES edges")
	}

	var sawEventNode bool
	for _, n := range graph.nodes {
		if n.Label == "ChangeEvent" {
			sawEventNode = true
		}
	}
	if !sawEventNode {
		t.Fatalf("expected a ChangeEvent node")
	}
}

func TestSaveWorkerPropagatesGraphFailure(t *testing.T) {
	graph := &fakeGraphWriter{mergeNodeErr: errors.New("boom")}
	w := NewSaveWorker(graph)

	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: sampleDoc()}}
	_, err := w.Run(context.Background(), embedded)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, domain.ErrGraphWrite) {
		t.Fatalf("expected ErrGraphWrite, got %v", err)
	}
}

func TestSaveWorkerNoChangeEventsIsNoOp(t *testing.T) {
	graph := &fakeGraphWriter{}
	w := NewSaveWorker(graph)

	embedded := &EmbeddedDocument{ParsedDocument: &ParsedDocument{LawID: "L1", Doc: sampleDoc()}}
	if _, err := w.Run(context.Background(), embedded); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, n := range graph.nodes {
		if n.Label == "ChangeEvent" {
			t.Fatalf("expected no ChangeEvent nodes when ChangeEvents is empty")
		}
	}
}
