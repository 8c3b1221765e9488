// Package linker resolves pending cross-document citations into REFERS_TO
// edges after every document in a batch has settled, per spec.md §4.7: a
// document's Save worker cannot create these edges itself since the target
// article may belong to a document that has not been saved yet (or ever
// will be, if the batch omits it).
package linker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boe-ingest/pipeline/internal/domain"
	"github.com/boe-ingest/pipeline/internal/graphadapter"
)

// PendingReference is one unresolved citation recorded during parse,
// carried forward by the orchestrator from every saved document's article
// nodes to the post-batch linking phase.
type PendingReference struct {
	SourceDocID     string
	SourceArticleID string // graph id of the citing article
	Ref             domain.Reference
}

// Resolver is the subset of GraphAdapter the linker needs, narrowed so
// tests can inject a fake.
type Resolver interface {
	FindArticleByName(ctx context.Context, docID, name string) (string, bool, error)
	BatchMergeRelationships(ctx context.Context, rels []graphadapter.RelationshipRecord) error
}

// Config configures the Linker. Zero BatchSize takes spec.md's documented
// default of 5000.
type Config struct {
	BatchSize            int
	RetryUnresolvedLinks bool
	Logger               *slog.Logger
}

// Result summarizes one linking pass.
type Result struct {
	Resolved   int
	Unresolved int
}

// Linker resolves PendingReferences into REFERS_TO edges.
type Linker struct {
	graph Resolver
	cfg   Config
}

// New builds a Linker.
func New(graph Resolver, cfg Config) *Linker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Linker{graph: graph, cfg: cfg}
}

// Run resolves every pending reference, batching BatchSize edges per
// BatchMergeRelationships round trip. Unresolved references are logged and
// never fatal (spec.md §7's LinkerUnresolvedRef error kind); when
// Config.RetryUnresolvedLinks is set, unresolved references from this pass
// are returned for the caller to retry after later documents land, per
// spec.md §9's operator-opt-in branch.
func (l *Linker) Run(ctx context.Context, pending []PendingReference) (Result, []PendingReference, error) {
	var result Result
	var unresolved []PendingReference
	var batch []graphadapter.RelationshipRecord

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.graph.BatchMergeRelationships(ctx, batch); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrGraphWrite, err)
		}
		batch = batch[:0]
		return nil
	}

	for i, p := range pending {
		targetID, found, err := l.graph.FindArticleByName(ctx, p.Ref.TargetDocID, p.Ref.TargetArticleID)
		if err != nil {
			return result, unresolved, fmt.Errorf("%w: resolving reference from %s: %v", domain.ErrGraphWrite, p.SourceArticleID, err)
		}
		if !found {
			l.cfg.Logger.Warn("linker.unresolved",
				"source_article", p.SourceArticleID, "target_doc", p.Ref.TargetDocID, "target_article", p.Ref.TargetArticleID)
			result.Unresolved++
			if l.cfg.RetryUnresolvedLinks {
				unresolved = append(unresolved, p)
			}
			continue
		}

		batch = append(batch, graphadapter.RelationshipRecord{
			Type: "REFERS_TO", FromLabel: "Articulo", FromID: p.SourceArticleID, ToLabel: "Articulo", ToID: targetID,
		})
		result.Resolved++

		if len(batch) >= l.cfg.BatchSize || i == len(pending)-1 {
			if err := flush(); err != nil {
				return result, unresolved, err
			}
		}
	}

	return result, unresolved, nil
}
