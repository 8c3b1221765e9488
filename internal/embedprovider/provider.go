// Package embedprovider implements batched, cache-through embedding
// generation with retry/backoff and a deterministic simulation mode.
package embedprovider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/boe-ingest/pipeline/internal/domain"
	"github.com/boe-ingest/pipeline/internal/embedcache"
	"github.com/boe-ingest/pipeline/pkg/fn"
)

// RemoteCaller performs the actual network call to an embedding backend.
// It never sees the cache; Provider is responsible for cache consultation.
type RemoteCaller interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config configures a Provider. Zero values take the spec's documented
// defaults via New.
type Config struct {
	Dimension          int
	BatchMax           int
	MaxRetries         int
	SimulateEmbeddings bool
	Logger             *slog.Logger
}

const (
	defaultDimension = 768
	defaultBatchMax  = 100
	defaultRetries   = 3
)

// Provider is the Embedding Provider component (C2): cache-through,
// batched, retried embedding generation.
type Provider struct {
	cfg    Config
	cache  embedcache.Cache
	remote RemoteCaller
	log    *slog.Logger
}

// New builds a Provider. remote is ignored when cfg.SimulateEmbeddings is
// true, since simulation never contacts the network.
func New(cfg Config, cache embedcache.Cache, remote RemoteCaller) *Provider {
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultDimension
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = defaultBatchMax
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRetries
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Provider{cfg: cfg, cache: cache, remote: remote, log: log}
}

// EmbedOne embeds a single text, consulting and populating the cache.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order, consulting the cache first and
// only sending misses to the remote backend (or the simulator). On
// permanent failure the whole call fails; no partial results are returned.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := ContextHash(text)
		keys[i] = key
		if p.cache != nil {
			if vec, ok, err := p.cache.Get(ctx, key); err == nil && ok {
				results[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	generated, err := p.generateChunked(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = generated[j]
		if p.cache != nil {
			if err := p.cache.Set(ctx, keys[idx], generated[j]); err != nil {
				p.log.Warn("embedprovider.cache_set_failed", "error", err)
			}
		}
	}
	return results, nil
}

// generateChunked splits texts into BatchMax-sized sub-batches and
// concatenates the results, matching the provider-imposed batch ceiling.
func (p *Provider) generateChunked(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.cfg.BatchMax {
		end := i + p.cfg.BatchMax
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := p.callWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// callWithRetry invokes the simulator or remote caller with exponential
// backoff on transient failures, per spec: 3 attempts, 1s/2s/4s, jittered.
// fn.Retry has no notion of error classification, so a permanent failure
// cancels the retry context to stop the loop after its first attempt
// instead of burning the remaining attempts on a call that can't succeed.
func (p *Provider) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	if p.cfg.SimulateEmbeddings {
		return p.simulate(texts), nil
	}

	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var permanentErr error

	opts := fn.RetryOpts{
		MaxAttempts: p.cfg.MaxRetries,
		InitialWait: time.Second,
		MaxWait:     4 * time.Second,
		Jitter:      true,
	}
	result := fn.Retry(retryCtx, opts, func(ctx context.Context) fn.Result[[][]float32] {
		vecs, err := p.remote.EmbedBatch(ctx, texts)
		if err != nil {
			if !isTransient(err) {
				permanentErr = fmt.Errorf("%w: %v", domain.ErrEmbedPermanent, err)
				cancel()
				return fn.Err[[][]float32](permanentErr)
			}
			return fn.Err[[][]float32](fmt.Errorf("%w: %v", domain.ErrEmbedTransient, err))
		}
		return fn.Ok(vecs)
	})
	if permanentErr != nil {
		return nil, permanentErr
	}
	vecs, err := result.Unwrap()
	if err != nil {
		if errors.Is(err, domain.ErrEmbedTransient) {
			return nil, fmt.Errorf("%w (exhausted retries): %v", domain.ErrEmbedPermanent, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: retry canceled", domain.ErrEmbedPermanent)
		}
		return nil, err
	}
	return vecs, nil
}

// isTransient classifies an error per spec §4.2: rate-limit, 429/500/502/
// 503/504, connection errors, and timeouts are transient; an HTTP status
// outside that set (auth, malformed request) fails fast. The status is
// found anywhere in the wrap chain; errors carrying no status are treated
// as connection errors and retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode() {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return true // unclassified network errors default to transient, matching "connection error" in the spec
}

// simulate returns deterministic pseudo-vectors derived from the hash of
// each input, never contacting the network.
func (p *Provider) simulate(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text, p.cfg.Dimension)
	}
	return out
}

func deterministicVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.LittleEndian.Uint64(sum[:8]))
	r := rand.New(rand.NewSource(seed))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(r.NormFloat64())
	}
	return vec
}

// ContextHash is the cache key for a canonical context string: lowercase
// hex SHA-256, matching the embedding cache's expected key shape.
func ContextHash(contextString string) string {
	sum := sha256.Sum256([]byte(contextString))
	return hex.EncodeToString(sum[:])
}
