package domain

import "errors"

// Sentinel error kinds, per the pipeline's error handling design. They are
// wrapped with context via fmt.Errorf("%w: ...") at the call site and
// checked with errors.Is by callers that need to branch on kind.
var (
	ErrFetchFailure     = errors.New("fetch failure")
	ErrParseFailure     = errors.New("parse failure")
	ErrEmbedTransient   = errors.New("transient embedding failure")
	ErrEmbedPermanent   = errors.New("permanent embedding failure")
	ErrGraphWrite       = errors.New("graph write failure")
	ErrCachePersist     = errors.New("cache persist failure")
	ErrLinkerUnresolved = errors.New("unresolved reference")
	ErrIndexLifecycle   = errors.New("vector index lifecycle failure")
)
