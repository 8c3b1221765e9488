// Package graphadapter implements the Graph Adapter component: a testable
// facade over Neo4j for idempotent upserts, batched writes, vector index
// lifecycle management, and the read-side traversals the rest of the
// pipeline needs.
package graphadapter

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Record is the minimal accessor the adapter needs from a driver record,
// narrow enough that a fake can satisfy it without pulling in neo4j types.
type Record interface {
	Get(key string) (any, bool)
}

// CypherResult is the minimal accessor needed from a query result.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() Record
}

// CypherRunner is satisfied by both a Session and a managed transaction,
// so write helpers can be shared between ad hoc runs and ExecuteWrite.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// Session is a single Neo4j session's worth of operations, abstracted so
// tests can inject a fake instead of dialing a real database.
type Session interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener opens sessions against a graph backend.
type SessionOpener interface {
	OpenSession(ctx context.Context) Session
}

// driverOpener adapts a real neo4j.DriverWithContext to SessionOpener.
type driverOpener struct {
	driver neo4j.DriverWithContext
}

// NewDriverOpener wraps a neo4j driver as a SessionOpener.
func NewDriverOpener(driver neo4j.DriverWithContext) SessionOpener {
	return &driverOpener{driver: driver}
}

func (o *driverOpener) OpenSession(ctx context.Context) Session {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	res, err := s.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &driverResult{res: res}, nil
}

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&txRunner{tx: tx})
	})
}

func (s *driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t *txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &driverResult{res: res}, nil
}

type driverResult struct {
	res neo4j.ResultWithContext
}

func (r *driverResult) Next(ctx context.Context) bool { return r.res.Next(ctx) }
func (r *driverResult) Record() Record                { return &driverRecord{rec: r.res.Record()} }

type driverRecord struct {
	rec *neo4j.Record
}

// Get returns a field's value, unwrapping a neo4j dbtype.Node into a plain
// property map so callers never need to import neo4j types themselves.
func (r *driverRecord) Get(key string) (any, bool) {
	val, ok := r.rec.Get(key)
	if !ok {
		return nil, false
	}
	if node, ok := val.(dbtype.Node); ok {
		return node.Props, true
	}
	return val, true
}
