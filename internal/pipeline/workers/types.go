// Package workers implements the three worker pools of the ingestion
// pipeline: Parse (CPU-bound), Embed (network-bound), and Save (disk-bound).
package workers

import (
	"context"
	"time"

	"github.com/boe-ingest/pipeline/internal/domain"
	"github.com/boe-ingest/pipeline/internal/graphadapter"
)

// ParsedDocument is produced by a Parse worker and consumed by an Embed
// worker. The orchestrator's embed queue carries *ParsedDocument directly;
// shutdown uses a nil *ParsedDocument as the poison pill, which a Parse
// worker never enqueues (a parsed document is always a non-nil pointer).
type ParsedDocument struct {
	LawID         string
	Doc           *domain.Document
	ChangeEvents  []*domain.ChangeEvent
	ParseDuration time.Duration
}

// EmbeddedDocument is produced by an Embed worker and consumed by a Save
// worker. The same nil-pointer poison pill shuts down the save queue.
type EmbeddedDocument struct {
	*ParsedDocument
	EmbedDuration time.Duration
}

// DocumentResult is the per-document outcome returned to the orchestrator.
type DocumentResult struct {
	LawID                 string
	Success               bool
	NodesCreated          int
	RelationshipsCreated  int
	ArticlesCount         int
	ParseDuration         time.Duration
	EmbedDuration         time.Duration
	SaveDuration          time.Duration
	ErrorMessage          string
}

// Fetcher retrieves the raw source document for a law ID. It is an
// out-of-scope external collaborator: the real implementation talks to the
// BOE HTTP API, but the Parse worker only depends on this narrow interface.
type Fetcher interface {
	Fetch(ctx context.Context, lawID string) ([]byte, error)
}

// DocParser turns raw source bytes into the domain tree. Like Fetcher, the
// real XML parser lives outside this module's scope; this interface is
// what makes the Parse worker testable with a fake.
type DocParser interface {
	Parse(raw []byte) (*domain.Document, error)
}

// GraphReader is the subset of graphadapter.GraphAdapter the Parse worker
// needs to reconcile multi-version content (spec.md §4.5 step 3): the
// Fetcher/DocParser contract only ever yields one version per law id, so
// the "previous version" a re-ingested document is diffed against is
// whatever was last persisted to the graph, not a second fetch.
type GraphReader interface {
	LoadArticleSnapshots(ctx context.Context, docID string) ([]graphadapter.ArticleSnapshot, bool, error)
}
