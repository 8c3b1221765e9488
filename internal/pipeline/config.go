// Package pipeline implements the queue-linked orchestrator: the decoupled
// three-pool (Parse/Embed/Save) producer-consumer system that ingests a
// batch of law ids into the knowledge graph, per spec.md §4.6.
package pipeline

import "log/slog"

// Config carries every documented option from spec.md §6 plus the
// ambient/domain-stack additions SPEC_FULL.md adds (optional Qdrant
// mirror, operator-opt-in linker retry, structured logging, optional
// completion notification).
type Config struct {
	// Pool sizes and queue capacity (spec.md §6).
	CPUWorkers     int
	NetworkWorkers int
	DiskWorkers    int
	QueueMaxsize   int

	// Embedding behavior (spec.md §6).
	ScatterChunkSize   int
	SkipEmbeddings     bool
	SimulateEmbeddings bool
	EmbeddingDim       int
	EmbeddingBatchMax  int
	EmbedRetries       int

	// Reference linking (spec.md §6 + §9's operator-opt-in branch).
	LinkBatchSize        int
	RetryUnresolvedLinks bool

	// Embedding cache file path (spec.md §6's single-file SQLite store).
	CachePath string

	// Optional Qdrant sidecar vector mirror (SPEC_FULL.md §4.3.1); empty
	// QdrantAddr disables it.
	QdrantAddr       string
	QdrantCollection string

	// Optional NATS batch-completion notification (SPEC_FULL.md domain
	// stack); empty NotifySubject disables it.
	NotifySubject string

	Logger *slog.Logger
}

// WithDefaults returns a copy of cfg with every zero-valued documented
// option replaced by spec.md §6's default.
func (c Config) WithDefaults() Config {
	if c.CPUWorkers <= 0 {
		c.CPUWorkers = 5
	}
	if c.NetworkWorkers <= 0 {
		c.NetworkWorkers = 20
	}
	if c.DiskWorkers <= 0 {
		c.DiskWorkers = 2
	}
	if c.QueueMaxsize <= 0 {
		c.QueueMaxsize = 50
	}
	if c.ScatterChunkSize <= 0 {
		c.ScatterChunkSize = 500
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = 768
	}
	if c.EmbeddingBatchMax <= 0 {
		c.EmbeddingBatchMax = 100
	}
	if c.EmbedRetries <= 0 {
		c.EmbedRetries = 3
	}
	if c.LinkBatchSize <= 0 {
		c.LinkBatchSize = 5000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
