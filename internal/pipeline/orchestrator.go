package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boe-ingest/pipeline/internal/dictionary"
	"github.com/boe-ingest/pipeline/internal/linker"
	"github.com/boe-ingest/pipeline/internal/notify"
	"github.com/boe-ingest/pipeline/internal/pipeline/workers"
	"github.com/boe-ingest/pipeline/pkg/fn"
)

// GraphAdapter is the subset of graphadapter.GraphAdapter the orchestrator
// itself drives directly (vector index lifecycle, dictionary preload,
// reference linking); the Save worker pool gets its own narrower
// workers.GraphWriter view of the same concrete adapter.
type GraphAdapter interface {
	workers.GraphWriter
	workers.GraphReader
	dictionary.BatchMerger
	linker.Resolver
	DropVectorIndex(ctx context.Context, indexName string) error
	CreateVectorIndex(ctx context.Context, indexName, label, property string, dim int) error
	EnsureConstraints(ctx context.Context) error
}

// Resources bundles every injected collaborator Run needs. Fetcher,
// Parser, and Embedder are out-of-scope external collaborators per
// spec.md §1/§6 (the real BOE HTTP client, XML parser, and embedding API
// client); Graph is a concrete *graphadapter.GraphAdapter in production
// and a fake in tests. This is a deliberate, explicitly-chosen departure
// from spec.md §6's literal `Run(ctx, cfg, lawIDs)` signature: those three
// collaborators cannot be constructed from Config alone without also
// reimplementing the out-of-scope BOE client and XML parser, so Run takes
// them as an explicit parameter instead of hiding their construction
// inside the orchestrator (recorded as an Open Question resolution in
// DESIGN.md).
type Resources struct {
	Fetcher  workers.Fetcher
	Parser   workers.DocParser
	Embedder workers.EmbedBatcher
	Graph    GraphAdapter

	// Cache is the embedding cache whose buffered writes the Embed worker
	// flushes once a document's articles all have vectors (spec.md §4.5).
	// Nil disables the flush step, e.g. when SkipEmbeddings never touches
	// the cache in the first place.
	Cache workers.EmbedCacheFlusher

	// Notifier publishes optional per-document completion events (see
	// internal/notify). A nil Notifier, or one built with an empty
	// subject, is a documented no-op.
	Notifier *notify.Publisher

	// Mirror optionally mirrors article embeddings into a sidecar vector
	// store (see graphadapter.VectorMirror). Nil disables mirroring.
	Mirror workers.VectorMirror
}

const (
	vectorIndexName  = "article_embeddings"
	vectorIndexLabel = "Articulo"
	vectorIndexProp  = "embedding"
)

// Run ingests lawIDs through the Parse -> Embed -> Save pipeline, then
// performs bulk reference linking and rebuilds the vector index, following
// spec.md §4.6's ten-step lifecycle.
func Run(ctx context.Context, cfg Config, res Resources, lawIDs []string) (BatchResult, error) {
	cfg = cfg.WithDefaults()
	start := time.Now()
	log := cfg.Logger

	// Step 1-2: drop the vector index and preload dictionaries before any
	// concurrent document worker can race to create the same shared nodes.
	if err := res.Graph.DropVectorIndex(ctx, vectorIndexName); err != nil {
		return BatchResult{}, err
	}
	preloader := dictionary.New(res.Graph, log)
	dictStats, err := preloader.PreloadAll(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Total: len(lawIDs), DictionaryStats: dictStats}
	if len(lawIDs) == 0 {
		if err := res.Graph.CreateVectorIndex(ctx, vectorIndexName, vectorIndexLabel, vectorIndexProp, cfg.EmbeddingDim); err != nil {
			return BatchResult{}, err
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	// Step 3: initialize the bounded inter-stage queues.
	embedQueue := make(chan *workers.ParsedDocument, cfg.QueueMaxsize)
	saveQueue := make(chan *workers.EmbeddedDocument, cfg.QueueMaxsize)
	lawQueue := make(chan string, len(lawIDs))
	for _, id := range lawIDs {
		lawQueue <- id
	}
	close(lawQueue)

	var mu sync.Mutex
	var pendingRefs []linker.PendingReference
	addResult := func(r workers.DocumentResult) {
		mu.Lock()
		result.PerDocument = append(result.PerDocument, r)
		if r.Success {
			result.Successful++
			result.TotalNodes += r.NodesCreated
			result.TotalRelationships += r.RelationshipsCreated
		} else {
			result.Failed++
		}
		mu.Unlock()
		res.Notifier.Publish(ctx, notify.DocumentCompletionEvent{
			LawID:                r.LawID,
			Success:              r.Success,
			NodesCreated:         r.NodesCreated,
			RelationshipsCreated: r.RelationshipsCreated,
			ArticlesCount:        r.ArticlesCount,
			ErrorMessage:         r.ErrorMessage,
		})
	}
	addRefs := func(refs []linker.PendingReference) {
		if len(refs) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		pendingRefs = append(pendingRefs, refs...)
	}

	parseWorker := workers.NewParseWorkerWithGraphReader(res.Fetcher, res.Parser, res.Graph, log)
	embedWorker := workers.NewEmbedWorker(res.Embedder, workers.EmbedWorkerConfig{
		ScatterChunkSize: cfg.ScatterChunkSize,
		SkipEmbeddings:   cfg.SkipEmbeddings,
		Cache:            res.Cache,
		Logger:           log,
	})
	var saveWorker *workers.SaveWorker
	if res.Mirror != nil {
		saveWorker = workers.NewSaveWorkerWithMirror(res.Graph, res.Mirror)
	} else {
		saveWorker = workers.NewSaveWorker(res.Graph)
	}

	// Step 4: start the three worker pools.
	var parseWG, embedWG, saveWG sync.WaitGroup
	phaseStart := time.Now()

	parse := parseStage(parseWorker)
	embed := embedStage(embedWorker)
	save := saveStage(saveWorker)

	parseWG.Add(cfg.CPUWorkers)
	for i := 0; i < cfg.CPUWorkers; i++ {
		go func() {
			defer parseWG.Done()
			runParsePool(ctx, parse, lawQueue, embedQueue, addResult)
		}()
	}

	embedWG.Add(cfg.NetworkWorkers)
	for i := 0; i < cfg.NetworkWorkers; i++ {
		go func() {
			defer embedWG.Done()
			runEmbedPool(ctx, embed, embedQueue, saveQueue, addResult)
		}()
	}

	saveWG.Add(cfg.DiskWorkers)
	for i := 0; i < cfg.DiskWorkers; i++ {
		go func() {
			defer saveWG.Done()
			runSavePool(ctx, save, saveQueue, addResult, addRefs)
		}()
	}

	// Step 5: await the Parse pool's completion (the task list closes on
	// its own, no poison pill needed there), then send Embed-pool-sized
	// poison pills downstream only after Parse has fully drained.
	parseWG.Wait()
	result.PhaseParseDuration = time.Since(phaseStart)
	for i := 0; i < cfg.NetworkWorkers; i++ {
		embedQueue <- nil
	}
	embedWG.Wait()
	result.PhaseEmbedDuration = time.Since(phaseStart)
	for i := 0; i < cfg.DiskWorkers; i++ {
		saveQueue <- nil
	}
	saveWG.Wait()
	result.PhaseSaveDuration = time.Since(phaseStart)

	// Step 6: bulk reference linking, once every document has settled.
	link := linker.New(res.Graph, linker.Config{
		BatchSize:            cfg.LinkBatchSize,
		RetryUnresolvedLinks: cfg.RetryUnresolvedLinks,
		Logger:               log,
	})
	linkResult, _, err := link.Run(ctx, pendingRefs)
	if err != nil {
		return BatchResult{}, err
	}
	result.TotalReferenceLinks = linkResult.Resolved

	// Step 7: rebuild the vector index.
	if err := res.Graph.CreateVectorIndex(ctx, vectorIndexName, vectorIndexLabel, vectorIndexProp, cfg.EmbeddingDim); err != nil {
		return BatchResult{}, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func runParsePool(ctx context.Context, parse fn.Stage[string, *workers.ParsedDocument], lawQueue <-chan string, embedQueue chan<- *workers.ParsedDocument, addResult func(workers.DocumentResult)) {
	for lawID := range lawQueue {
		parsed, err := parse(ctx, lawID).Unwrap()
		if err != nil {
			addResult(workers.DocumentResult{LawID: lawID, Success: false, ErrorMessage: err.Error()})
			continue
		}
		embedQueue <- parsed
	}
}

func runEmbedPool(ctx context.Context, embed fn.Stage[*workers.ParsedDocument, *workers.EmbeddedDocument], embedQueue <-chan *workers.ParsedDocument, saveQueue chan<- *workers.EmbeddedDocument, addResult func(workers.DocumentResult)) {
	for doc := range embedQueue {
		if doc == nil {
			return
		}
		embedded, err := embed(ctx, doc).Unwrap()
		if err != nil {
			addResult(workers.DocumentResult{LawID: doc.LawID, Success: false, ParseDuration: doc.ParseDuration, ErrorMessage: err.Error()})
			continue
		}
		saveQueue <- embedded
	}
}

func runSavePool(ctx context.Context, save fn.Stage[*workers.EmbeddedDocument, workers.DocumentResult], saveQueue <-chan *workers.EmbeddedDocument, addResult func(workers.DocumentResult), addRefs func([]linker.PendingReference)) {
	for doc := range saveQueue {
		if doc == nil {
			return
		}
		result, err := save(ctx, doc).Unwrap()
		if err != nil {
			result.LawID = doc.LawID
			result.ErrorMessage = err.Error()
			result.Success = false
		}
		addResult(result)
		if result.Success {
			addRefs(collectPendingReferences(doc))
		}
	}
}

// collectPendingReferences gathers every unresolved citation recorded on
// doc's articles during parse, addressing the source article by the same
// "<docID>:<nodeID>" graph id scheme workers.SaveWorker assigns it.
func collectPendingReferences(doc *workers.EmbeddedDocument) []linker.PendingReference {
	var refs []linker.PendingReference
	tree := doc.Doc.ContentTree
	for _, h := range tree.Articles() {
		n := tree.Node(h)
		for _, ref := range n.References {
			refs = append(refs, linker.PendingReference{
				SourceDocID:     doc.Doc.ID,
				SourceArticleID: fmt.Sprintf("%s:%d", doc.Doc.ID, n.ID),
				Ref:             ref,
			})
		}
	}
	return refs
}
