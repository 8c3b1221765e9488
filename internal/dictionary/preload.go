// Package dictionary implements the one-shot, synchronous preload of the
// shared taxonomy nodes (Materia, Departamento, Rango) that every document
// worker references but none should race to create.
package dictionary

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/boe-ingest/pipeline/internal/graphadapter"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

// Entry is a single taxonomy code/label pair.
type Entry struct {
	Code  int    `yaml:"code"`
	Label string `yaml:"label"`
}

// taxonomy mirrors the embedded YAML's top-level shape.
type taxonomy struct {
	Rango        []Entry `yaml:"rango"`
	Departamento []Entry `yaml:"departamento"`
	Materia      []Entry `yaml:"materia"`
}

// classOrder lists the taxonomy class names (also their Neo4j node labels),
// fixing the iteration order so preload stats are deterministic across runs.
var classOrder = []string{"Materia", "Departamento", "Rango"}

// BatchMerger is the subset of GraphAdapter the preloader needs, narrowed
// so tests can inject a fake instead of a real graphadapter.GraphAdapter.
type BatchMerger interface {
	BatchMergeNodes(ctx context.Context, nodes []graphadapter.NodeRecord) error
}

// PreloadStat reports how many entries were merged for one taxonomy class.
type PreloadStat struct {
	Merged int
}

// Preloader runs the one-shot taxonomy preload before concurrent document
// ingestion starts, preventing the deadlocks that would occur if multiple
// document workers raced to MERGE the same shared Materia/Departamento/
// Rango node.
type Preloader struct {
	adapter BatchMerger
	log     *slog.Logger
}

// New builds a Preloader over the given adapter.
func New(adapter BatchMerger, log *slog.Logger) *Preloader {
	if log == nil {
		log = slog.Default()
	}
	return &Preloader{adapter: adapter, log: log}
}

// PreloadAll parses the embedded taxonomy fixture and merges every class in
// one round trip per class, returning per-class stats. Safe to call more
// than once: every merge is idempotent.
func (p *Preloader) PreloadAll(ctx context.Context) (map[string]PreloadStat, error) {
	var tax taxonomy
	if err := yaml.Unmarshal(taxonomyYAML, &tax); err != nil {
		return nil, fmt.Errorf("dictionary: parse embedded taxonomy: %w", err)
	}

	byClass := map[string][]Entry{
		"Materia":      tax.Materia,
		"Departamento": tax.Departamento,
		"Rango":        tax.Rango,
	}

	stats := make(map[string]PreloadStat, len(classOrder))
	total := 0
	for _, class := range classOrder {
		entries := byClass[class]
		if err := p.adapter.BatchMergeNodes(ctx, toNodeRecords(class, entries)); err != nil {
			return nil, fmt.Errorf("dictionary: preload %s: %w", class, err)
		}
		stats[class] = PreloadStat{Merged: len(entries)}
		total += len(entries)
		p.log.Info("dictionary.preloaded_class", "class", class, "count", len(entries))
	}
	p.log.Info("dictionary.preload_complete", "total", total)
	return stats, nil
}

func toNodeRecords(label string, entries []Entry) []graphadapter.NodeRecord {
	records := make([]graphadapter.NodeRecord, len(entries))
	for i, e := range entries {
		records[i] = graphadapter.NodeRecord{
			Label: label,
			ID:    fmt.Sprintf("%d", e.Code),
			Props: map[string]any{"code": e.Code, "name": e.Label},
		}
	}
	return records
}
