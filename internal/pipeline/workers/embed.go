package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boe-ingest/pipeline/internal/domain"
)

// EmbedBatcher is the subset of embedprovider.Provider the Embed worker
// needs, narrowed so tests can inject a fake.
type EmbedBatcher interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedCacheFlusher is the subset of embedcache.Cache the Embed worker
// needs: once every article in a document has a vector, the cache's
// buffered writes must be committed durably before the document moves on
// to Save, per spec.md §4.5's "after all articles have vectors, flush()
// the cache" step. A nil flusher (e.g. skip-embeddings runs with no cache
// configured) disables this step.
type EmbedCacheFlusher interface {
	Flush(ctx context.Context) error
}

// EmbedWorker builds canonical context strings for every article in a
// document and assigns embeddings back by position, scattering oversized
// documents into independent chunks per spec.md §4's Embed Workers section.
type EmbedWorker struct {
	provider         EmbedBatcher
	cache            EmbedCacheFlusher
	scatterChunkSize int
	skipEmbeddings   bool
	log              *slog.Logger
}

// EmbedWorkerConfig configures an EmbedWorker. Zero ScatterChunkSize takes
// the spec's documented default of 500.
type EmbedWorkerConfig struct {
	ScatterChunkSize int
	SkipEmbeddings   bool
	Cache            EmbedCacheFlusher
	Logger           *slog.Logger
}

// NewEmbedWorker builds an EmbedWorker.
func NewEmbedWorker(provider EmbedBatcher, cfg EmbedWorkerConfig) *EmbedWorker {
	if cfg.ScatterChunkSize <= 0 {
		cfg.ScatterChunkSize = 500
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &EmbedWorker{provider: provider, cache: cfg.Cache, scatterChunkSize: cfg.ScatterChunkSize, skipEmbeddings: cfg.SkipEmbeddings, log: log}
}

// Run embeds every article in doc.Doc, dispatching scatter-gather chunks
// via errgroup when the article count exceeds ScatterChunkSize, flushes
// the embedding cache once every article has a vector, and returns an
// EmbeddedDocument. In skip-embeddings mode the document passes through
// untouched and the cache is never consulted, for benchmarking the rest of
// the pipeline.
func (w *EmbedWorker) Run(ctx context.Context, doc *ParsedDocument) (*EmbeddedDocument, error) {
	start := time.Now()

	if w.skipEmbeddings {
		return &EmbeddedDocument{ParsedDocument: doc, EmbedDuration: time.Since(start)}, nil
	}

	articles := doc.Doc.ContentTree.Articles()
	if len(articles) <= w.scatterChunkSize {
		if err := w.embedChunk(ctx, doc.Doc, articles); err != nil {
			return nil, err
		}
	} else {
		if err := w.embedScattered(ctx, doc.Doc, articles); err != nil {
			return nil, err
		}
	}

	if w.cache != nil {
		if err := w.cache.Flush(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCachePersist, err)
		}
	}

	return &EmbeddedDocument{ParsedDocument: doc, EmbedDuration: time.Since(start)}, nil
}

// embedChunk embeds one contiguous slice of article handles and writes the
// resulting vectors back by position.
func (w *EmbedWorker) embedChunk(ctx context.Context, doc *domain.Document, handles []domain.NodeHandle) error {
	if len(handles) == 0 {
		return nil
	}
	texts := make([]string, len(handles))
	for i, h := range handles {
		texts[i] = BuildContextString(doc, h)
	}

	vectors, err := w.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEmbedPermanent, err)
	}
	if len(vectors) != len(handles) {
		return fmt.Errorf("%w: embed batch returned %d vectors for %d articles", domain.ErrEmbedPermanent, len(vectors), len(handles))
	}
	for i, h := range handles {
		doc.ContentTree.Node(h).Embedding = vectors[i]
	}
	return nil
}

// embedScattered partitions handles into ScatterChunkSize-sized chunks and
// dispatches each as an independent errgroup task. Chunks write into
// disjoint slices of the same ContentTree's node arena, so no further
// synchronization is required between them once the group completes.
func (w *EmbedWorker) embedScattered(ctx context.Context, doc *domain.Document, handles []domain.NodeHandle) error {
	g, gCtx := errgroup.WithContext(ctx)

	for i := 0; i < len(handles); i += w.scatterChunkSize {
		end := i + w.scatterChunkSize
		if end > len(handles) {
			end = len(handles)
		}
		chunk := handles[i:end]
		g.Go(func() error {
			return w.embedChunk(gCtx, doc, chunk)
		})
	}

	return g.Wait()
}
