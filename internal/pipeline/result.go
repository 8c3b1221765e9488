package pipeline

import (
	"time"

	"github.com/boe-ingest/pipeline/internal/dictionary"
	"github.com/boe-ingest/pipeline/internal/pipeline/workers"
)

// DocumentResult is re-exported from workers so callers of Run never need
// to import the internal workers package directly.
type DocumentResult = workers.DocumentResult

// BatchResult is the shape spec.md §6 documents as the core's return value.
type BatchResult struct {
	Total               int
	Successful          int
	Failed              int
	TotalNodes          int
	TotalRelationships  int
	TotalReferenceLinks int
	Duration            time.Duration

	// Phase durations are wall-clock times from the start of the worker
	// pools until the last worker of that pool has exited.
	PhaseParseDuration time.Duration
	PhaseEmbedDuration time.Duration
	PhaseSaveDuration  time.Duration

	DictionaryStats map[string]dictionary.PreloadStat
	PerDocument     []DocumentResult
}
