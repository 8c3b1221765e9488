// Command ingest batch-ingests a caller-supplied list of BOE law ids
// through the decoupled ingestion pipeline into Neo4j, optionally mirroring
// article embeddings into Qdrant and publishing per-document completion
// events over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/boe-ingest/pipeline/internal/embedcache"
	"github.com/boe-ingest/pipeline/internal/embedprovider"
	"github.com/boe-ingest/pipeline/internal/graphadapter"
	"github.com/boe-ingest/pipeline/internal/notify"
	"github.com/boe-ingest/pipeline/internal/pipeline"
	"github.com/boe-ingest/pipeline/pkg/fn"
	"github.com/boe-ingest/pipeline/pkg/metrics"
	"github.com/boe-ingest/pipeline/pkg/mid"
	"github.com/boe-ingest/pipeline/pkg/resilience"
)

var met = metrics.New()

var (
	mBatchesTotal    = met.Counter("boe_ingest_batches_total", "Total ingest batches run")
	mDocsSuccess     = met.Counter("boe_ingest_docs_success_total", "Documents ingested successfully")
	mDocsFailed      = met.Counter("boe_ingest_docs_failed_total", "Documents that failed ingestion")
	mNodesCreated    = met.Counter("boe_ingest_nodes_created_total", "Graph nodes created")
	mRelsCreated     = met.Counter("boe_ingest_relationships_created_total", "Graph relationships created")
	mLinksResolved   = met.Counter("boe_ingest_reference_links_total", "REFERS_TO edges resolved")
	mBatchDur        = met.Histogram("boe_ingest_batch_duration_seconds", "Full batch duration", nil)
	mEmbedCircuit    = met.Gauge("boe_ingest_embed_circuit_open", "1 when the embedding circuit breaker is open")
)

func main() {
	var (
		lawIDsFlag   = flag.String("law-ids", "", "comma-separated BOE law ids to ingest (e.g. BOE-A-1978-31229,BOE-A-1889-4763)")
		boeURL       = flag.String("boe", "https://www.boe.es", "BOE base URL")
		neo4jURL     = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser    = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass    = flag.String("neo4j-pass", "boe-ingest", "Neo4j password")
		ollamaURL    = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel  = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		cachePath    = flag.String("cache", "/tmp/boe-ingest/embeddings.db", "embedding cache path")
		qdrantAddr   = flag.String("qdrant", "", "Qdrant gRPC address; empty disables the vector mirror")
		collection   = flag.String("collection", "boe_articles", "Qdrant mirror collection name")
		natsURL      = flag.String("nats", "", "NATS URL; empty disables completion notifications")
		notifySubj   = flag.String("notify-subject", "pipeline.results", "NATS subject for completion events")
		cpuWorkers   = flag.Int("cpu-workers", 0, "Parse pool size (0 = default)")
		netWorkers   = flag.Int("network-workers", 0, "Embed pool size (0 = default)")
		diskWorkers  = flag.Int("disk-workers", 0, "Save pool size (0 = default)")
		queueMax     = flag.Int("queue-maxsize", 0, "inter-stage queue depth (0 = default)")
		embeddingDim = flag.Int("embedding-dim", 0, "embedding vector dimension (0 = default)")
		skipEmbed    = flag.Bool("skip-embeddings", false, "skip embedding generation entirely")
		simEmbed     = flag.Bool("simulate-embeddings", false, "generate deterministic fake embeddings instead of calling Ollama")
		retryLinks   = flag.Bool("retry-unresolved-links", false, "have the linker collect unresolved references (the batch does not retry them)")
		metricsPort  = flag.Int("metrics-port", 9091, "Prometheus-style metrics port")
		ollamaRate   = flag.Float64("ollama-rate-limit", 0, "max Ollama requests/sec (0 disables rate limiting)")
		ollamaBurst  = flag.Int("ollama-rate-burst", 5, "token bucket burst size for -ollama-rate-limit")
	)
	flag.Parse()

	log := slog.Default()
	lawIDs := parseLawIDs(*lawIDsFlag)
	if len(lawIDs) == 0 {
		log.Error("no law ids given", "hint", "pass -law-ids=BOE-A-...,BOE-A-...")
		os.Exit(1)
	}

	serveMetrics(*metricsPort, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Neo4j")

	graph := graphadapter.New(graphadapter.NewDriverOpener(driver), graphadapter.Config{Logger: log})
	if err := graph.EnsureConstraints(ctx); err != nil {
		log.Error("neo4j constraints failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*cachePath), 0o755); err != nil {
		log.Error("embedding cache directory failed", "error", err, "path", *cachePath)
		os.Exit(1)
	}
	cache, err := embedcache.Open(*cachePath, log)
	if err != nil {
		log.Error("embedding cache open failed", "error", err, "path", *cachePath)
		os.Exit(1)
	}
	defer cache.Close()

	cfg := pipeline.Config{
		CPUWorkers:           *cpuWorkers,
		NetworkWorkers:       *netWorkers,
		DiskWorkers:          *diskWorkers,
		QueueMaxsize:         *queueMax,
		EmbeddingDim:         *embeddingDim,
		SkipEmbeddings:       *skipEmbed,
		SimulateEmbeddings:   *simEmbed,
		RetryUnresolvedLinks: *retryLinks,
		CachePath:            *cachePath,
		QdrantAddr:           *qdrantAddr,
		QdrantCollection:     *collection,
		NotifySubject:        *notifySubj,
		Logger:               log,
	}.WithDefaults()

	var remote embedprovider.RemoteCaller
	if !cfg.SkipEmbeddings && !cfg.SimulateEmbeddings {
		breaker := resilience.NewBreaker(resilience.BreakerOpts{})
		caller := &breakerCaller{inner: embedprovider.NewHTTPClient(*ollamaURL, *ollamaModel), breaker: breaker}
		if *ollamaRate > 0 {
			caller.limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: *ollamaRate, Burst: *ollamaBurst})
			log.Info("rate limiting Ollama calls", "rate", *ollamaRate, "burst", *ollamaBurst)
		}
		remote = caller
		log.Info("using Ollama embeddings", "model", *ollamaModel, "url", *ollamaURL)
	}
	provider := embedprovider.New(embedprovider.Config{
		Dimension:          cfg.EmbeddingDim,
		BatchMax:           cfg.EmbeddingBatchMax,
		MaxRetries:         cfg.EmbedRetries,
		SimulateEmbeddings: cfg.SimulateEmbeddings,
		Logger:             log,
	}, cache, remote)

	var mirror *graphadapter.VectorMirror
	if *qdrantAddr != "" {
		mirror, err = graphadapter.NewVectorMirror(*qdrantAddr, *collection, log)
		if err != nil {
			log.Error("qdrant mirror dial failed", "error", err)
			os.Exit(1)
		}
		defer mirror.Close()
		if err := mirror.EnsureCollection(ctx, cfg.EmbeddingDim); err != nil {
			log.Error("qdrant mirror ensure collection failed", "error", err)
			os.Exit(1)
		}
		log.Info("mirroring embeddings to Qdrant", "collection", *collection)
	}

	var publisher *notify.Publisher
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = notify.New(nc, *notifySubj, log)
		log.Info("publishing completion events", "subject", *notifySubj)
	}

	res := pipeline.Resources{
		Fetcher:  newBOEFetcher(*boeURL),
		Parser:   boeXMLParser{},
		Embedder: provider,
		Graph:    graph,
		Cache:    cache,
		Notifier: publisher,
	}
	if mirror != nil {
		res.Mirror = mirror
	}

	log.Info("starting batch", "documents", len(lawIDs))
	mBatchesTotal.Inc()
	start := time.Now()
	result, err := pipeline.Run(ctx, cfg, res, lawIDs)
	mBatchDur.Since(start)
	if err != nil {
		log.Error("batch aborted", "error", err)
		os.Exit(1)
	}

	mDocsSuccess.Add(int64(result.Successful))
	mDocsFailed.Add(int64(result.Failed))
	mNodesCreated.Add(int64(result.TotalNodes))
	mRelsCreated.Add(int64(result.TotalRelationships))
	mLinksResolved.Add(int64(result.TotalReferenceLinks))
	log.Info("batch complete",
		"total", result.Total, "successful", result.Successful, "failed", result.Failed,
		"nodes", result.TotalNodes, "relationships", result.TotalRelationships,
		"reference_links", result.TotalReferenceLinks, "duration", result.Duration)
}

// serveMetrics exposes the registry's /metrics endpoint through the same
// request-logging and panic-recovery middleware chain an HTTP-facing
// command would use, instead of the registry's own bare ServeAsync.
func serveMetrics(port int, log *slog.Logger) {
	handler := mid.Chain(met.Handler(), mid.Recover(log), mid.Logger(log))
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()
}

func parseLawIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

// breakerCaller wraps an embedprovider.RemoteCaller with a circuit breaker,
// so a struggling Ollama instance trips the breaker instead of every Embed
// worker piling on failed requests, and an optional token-bucket limiter
// that throttles outgoing batches to the same backend before the breaker
// ever sees them.
type breakerCaller struct {
	inner   embedprovider.RemoteCaller
	breaker *resilience.Breaker
	limiter *resilience.Limiter
}

func (c *breakerCaller) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	result := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[][]float32] {
		vecs, err := c.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[[][]float32](err)
		}
		return fn.Ok(vecs)
	})
	if c.breaker.State() == resilience.StateOpen {
		mEmbedCircuit.Set(1)
	} else {
		mEmbedCircuit.Set(0)
	}
	return result.Unwrap()
}
