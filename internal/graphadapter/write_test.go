package graphadapter

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMergeNodeUsesLabelAndID(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	err := g.MergeNode(context.Background(), NodeRecord{Label: "Articulo", ID: "a1", Props: map[string]any{"text": "hola"}})
	if err != nil {
		t.Fatalf("merge node: %v", err)
	}
	if len(sess.calls) != 1 {
		t.Fatalf("expected 1 Run call, got %d", len(sess.calls))
	}
	if !strings.Contains(sess.calls[0].cypher, "MERGE (n:Articulo") {
		t.Fatalf("unexpected cypher: %s", sess.calls[0].cypher)
	}
	if sess.calls[0].params["id"] != "a1" {
		t.Fatalf("expected id param a1, got %v", sess.calls[0].params["id"])
	}
	if !sess.closed {
		t.Fatalf("expected session to be closed")
	}
}

func TestMergeNodeSanitizesLabel(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	if err := g.MergeNode(context.Background(), NodeRecord{Label: "Bad; DROP", ID: "x"}); err != nil {
		t.Fatalf("merge node: %v", err)
	}
	if strings.ContainsAny(sess.calls[0].cypher, ";") {
		t.Fatalf("expected sanitized label, cypher still has a semicolon: %s", sess.calls[0].cypher)
	}
}

func TestMergeRelationshipBuildsMatchMerge(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	err := g.MergeRelationship(context.Background(), RelationshipRecord{
		Type: "refers_to", FromLabel: "Articulo", FromID: "a1", ToLabel: "Articulo", ToID: "a2",
	})
	if err != nil {
		t.Fatalf("merge relationship: %v", err)
	}
	cypher := sess.calls[0].cypher
	if !strings.Contains(cypher, "MERGE (a)-[r:REFERS_TO]->(b)") {
		t.Fatalf("expected uppercased relation type in cypher, got: %s", cypher)
	}
}

func TestBatchMergeNodesEmptyIsNoop(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	if err := g.BatchMergeNodes(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error on empty batch, got %v", err)
	}
	if len(sess.calls) != 0 {
		t.Fatalf("expected no Run calls for empty batch, got %d", len(sess.calls))
	}
}

func TestBatchMergeNodesSingleTransaction(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	nodes := []NodeRecord{
		{Label: "Articulo", ID: "a1"},
		{Label: "Articulo", ID: "a2"},
		{Label: "Articulo", ID: "a3"},
	}
	if err := g.BatchMergeNodes(context.Background(), nodes); err != nil {
		t.Fatalf("batch merge: %v", err)
	}
	if len(sess.calls) != 3 {
		t.Fatalf("expected 3 Run calls inside one ExecuteWrite, got %d", len(sess.calls))
	}
}

func TestBatchMergeNodesPropagatesMidBatchFailure(t *testing.T) {
	sess := &fakeSession{errs: []error{nil, errors.New("boom")}}
	g := New(&fakeOpener{sess: sess}, Config{})

	nodes := []NodeRecord{{Label: "Articulo", ID: "a1"}, {Label: "Articulo", ID: "a2"}, {Label: "Articulo", ID: "a3"}}
	err := g.BatchMergeNodes(context.Background(), nodes)
	if err == nil {
		t.Fatalf("expected error from mid-batch failure")
	}
	if len(sess.calls) != 2 {
		t.Fatalf("expected batch to stop after the failing call, got %d calls", len(sess.calls))
	}
}

func TestEnsureConstraintsCoversCoreLabels(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	if err := g.EnsureConstraints(context.Background()); err != nil {
		t.Fatalf("ensure constraints: %v", err)
	}
	if len(sess.calls) != len(coreLabels) {
		t.Fatalf("expected %d constraint calls, got %d", len(coreLabels), len(sess.calls))
	}
}

func TestCreateVectorIndexDropsThenCreates(t *testing.T) {
	sess := &fakeSession{}
	g := New(&fakeOpener{sess: sess}, Config{})

	if err := g.CreateVectorIndex(context.Background(), "article_embeddings", "Articulo", "embedding", 768); err != nil {
		t.Fatalf("create vector index: %v", err)
	}
	if len(sess.calls) != 2 {
		t.Fatalf("expected drop then create, got %d calls", len(sess.calls))
	}
	if !strings.Contains(sess.calls[0].cypher, "DROP INDEX") {
		t.Fatalf("expected first call to drop, got: %s", sess.calls[0].cypher)
	}
	if !strings.Contains(sess.calls[1].cypher, "CREATE VECTOR INDEX") {
		t.Fatalf("expected second call to create, got: %s", sess.calls[1].cypher)
	}
}
