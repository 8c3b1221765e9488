package pipeline

import (
	"context"

	"github.com/boe-ingest/pipeline/internal/pipeline/workers"
	"github.com/boe-ingest/pipeline/pkg/fn"
)

// parseStage wraps a ParseWorker.Run as a traced fn.Stage, giving every
// Parse invocation its own OTel span the same way pkg/fn's own stage
// composition does for any other pipeline.
func parseStage(w *workers.ParseWorker) fn.Stage[string, *workers.ParsedDocument] {
	return fn.TracedStage("worker.parse", func(ctx context.Context, lawID string) fn.Result[*workers.ParsedDocument] {
		doc, err := w.Run(ctx, lawID)
		if err != nil {
			return fn.Err[*workers.ParsedDocument](err)
		}
		return fn.Ok(doc)
	})
}

func embedStage(w *workers.EmbedWorker) fn.Stage[*workers.ParsedDocument, *workers.EmbeddedDocument] {
	return fn.TracedStage("worker.embed", func(ctx context.Context, doc *workers.ParsedDocument) fn.Result[*workers.EmbeddedDocument] {
		embedded, err := w.Run(ctx, doc)
		if err != nil {
			return fn.Err[*workers.EmbeddedDocument](err)
		}
		return fn.Ok(embedded)
	})
}

func saveStage(w *workers.SaveWorker) fn.Stage[*workers.EmbeddedDocument, workers.DocumentResult] {
	return fn.TracedStage("worker.save", func(ctx context.Context, doc *workers.EmbeddedDocument) fn.Result[workers.DocumentResult] {
		result, err := w.Run(ctx, doc)
		if err != nil {
			return fn.Err[workers.DocumentResult](err)
		}
		return fn.Ok(result)
	})
}
