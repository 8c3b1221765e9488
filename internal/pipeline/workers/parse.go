package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boe-ingest/pipeline/internal/domain"
)

// ParseWorker fetches and parses one document, reconciling multi-version
// content into change events, per spec.md §4 step 1-4. Fetcher and
// DocParser are injected so the core compiles and is testable without the
// real BOE HTTP client or XML parser. The Fetcher/DocParser contract only
// ever yields the current version of a document, so "multi-version" here
// means diffing against whatever graph state a previous ingest of the same
// law id left behind, via GraphReader; a nil GraphReader disables
// reconciliation entirely (e.g. a from-scratch batch with no prior graph).
type ParseWorker struct {
	fetcher Fetcher
	parser  DocParser
	graph   GraphReader
	log     *slog.Logger
}

// NewParseWorker builds a ParseWorker with no version reconciliation.
func NewParseWorker(fetcher Fetcher, parser DocParser, log *slog.Logger) *ParseWorker {
	return NewParseWorkerWithGraphReader(fetcher, parser, nil, log)
}

// NewParseWorkerWithGraphReader builds a ParseWorker that diffs each
// re-ingested document against its previously persisted graph state.
func NewParseWorkerWithGraphReader(fetcher Fetcher, parser DocParser, graph GraphReader, log *slog.Logger) *ParseWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ParseWorker{fetcher: fetcher, parser: parser, graph: graph, log: log}
}

// Run fetches and parses lawID, returning a ParsedDocument or an error that
// callers should record as a failed DocumentResult rather than retry
// (fetch returning an empty body and parser errors are both terminal for
// this document, per spec.md §4's Parse Worker failure modes).
func (w *ParseWorker) Run(ctx context.Context, lawID string) (*ParsedDocument, error) {
	start := time.Now()

	raw, err := w.fetcher.Fetch(ctx, lawID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrFetchFailure, lawID, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: fetch %s returned empty body", domain.ErrFetchFailure, lawID)
	}

	doc, err := w.parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrParseFailure, lawID, err)
	}

	events, err := w.reconcile(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: reconcile %s: %v", domain.ErrParseFailure, lawID, err)
	}

	return &ParsedDocument{
		LawID:         lawID,
		Doc:           doc,
		ChangeEvents:  events,
		ParseDuration: time.Since(start),
	}, nil
}

// reconcile diffs doc against the article snapshots its previous ingest
// left in the graph, producing one ChangeEvent when a prior version exists.
// A document with no prior graph state (first ingest) produces none, since
// every article being "added" relative to nothing is not a meaningful
// change event.
func (w *ParseWorker) reconcile(ctx context.Context, doc *domain.Document) ([]*domain.ChangeEvent, error) {
	if w.graph == nil {
		return nil, nil
	}
	snapshots, found, err := w.graph.LoadArticleSnapshots(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	prevTree := domain.NewContentTree()
	for i, s := range snapshots {
		prevTree.AddChild(prevTree.Root(), domain.Node{
			ID:   i + 1,
			Type: domain.ParseNodeType(s.NodeType),
			Name: s.Name,
			Text: s.Text,
		})
	}
	prevDoc := &domain.Document{ID: doc.ID, ContentTree: prevTree}
	return ReconcileVersions(doc.ID, []*domain.Document{prevDoc, doc}), nil
}
