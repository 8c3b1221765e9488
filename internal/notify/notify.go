// Package notify publishes optional per-document completion events over
// NATS so external dashboards can watch a batch progress live. It is pure
// telemetry: nothing downstream of the pipeline depends on these events
// arriving, and a Publisher with no connection is a documented no-op.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/boe-ingest/pipeline/pkg/natsutil"
)

// DocumentCompletionEvent mirrors the shape of workers.DocumentResult that
// is safe and useful to expose externally. EventID is deterministic so a
// dashboard that sees the same event twice (at-least-once redelivery) can
// dedupe on it.
type DocumentCompletionEvent struct {
	EventID              string `json:"event_id"`
	LawID                string `json:"law_id"`
	Success              bool   `json:"success"`
	NodesCreated         int    `json:"nodes_created"`
	RelationshipsCreated int    `json:"relationships_created"`
	ArticlesCount        int    `json:"articles_count"`
	ErrorMessage         string `json:"error_message,omitempty"`
}

// Publisher publishes DocumentCompletionEvents to a single NATS subject.
// A nil *Publisher, or one built over a nil connection, makes Publish a
// no-op so callers never have to branch on whether notification is
// enabled (Config.NotifySubject == "" disables it at construction time).
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

// New builds a Publisher. Pass an empty subject to get a disabled
// Publisher whose Publish calls are no-ops.
func New(nc *nats.Conn, subject string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{nc: nc, subject: subject, log: log}
}

// Publish sends ev to the configured subject. Publish failures are logged
// and swallowed rather than returned: a dropped completion event must
// never fail the document it describes, since by the time Publish is
// called the document has already been durably written to the graph.
func (p *Publisher) Publish(ctx context.Context, ev DocumentCompletionEvent) {
	if p == nil || p.nc == nil || p.subject == "" {
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%v", ev.LawID, ev.Success))).String()
	}
	if err := natsutil.Publish(ctx, p.nc, p.subject, ev); err != nil {
		p.log.Warn("notify.publish_failed", "subject", p.subject, "law_id", ev.LawID, "error", err)
	}
}
