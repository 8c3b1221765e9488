package main

import (
	"context"
	"testing"
	"time"

	"github.com/boe-ingest/pipeline/pkg/resilience"
)

type fakeRemoteCaller struct {
	calls int
}

func (f *fakeRemoteCaller) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestBreakerCallerAppliesRateLimitBeforeBreaker(t *testing.T) {
	inner := &fakeRemoteCaller{}
	caller := &breakerCaller{
		inner:   inner,
		breaker: resilience.NewBreaker(resilience.BreakerOpts{}),
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.0001, Burst: 1}),
	}

	if _, err := caller.EmbedBatch(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if _, err := caller.EmbedBatch(ctx, []string{"b"}); err == nil {
		t.Fatalf("expected the second call to block on the exhausted burst and hit the context deadline")
	}
	if inner.calls != 1 {
		t.Fatalf("expected the rate-limited call to never reach the remote caller, got %d calls", inner.calls)
	}
}

func TestBreakerCallerWithoutLimiterPassesThrough(t *testing.T) {
	inner := &fakeRemoteCaller{}
	caller := &breakerCaller{inner: inner, breaker: resilience.NewBreaker(resilience.BreakerOpts{})}
	if _, err := caller.EmbedBatch(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 call, got %d", inner.calls)
	}
}

func TestParseLawIDsSplitsTrimsAndSkipsEmpty(t *testing.T) {
	got := parseLawIDs(" BOE-A-1978-31229 ,BOE-A-1889-4763,, BOE-A-2020-1")
	want := []string{"BOE-A-1978-31229", "BOE-A-1889-4763", "BOE-A-2020-1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d: %v", len(want), len(got), got)
	}
	for i, id := range want {
		if got[i] != id {
			t.Fatalf("id %d: expected %q, got %q", i, id, got[i])
		}
	}
}

func TestParseLawIDsEmptyInput(t *testing.T) {
	if got := parseLawIDs(""); len(got) != 0 {
		t.Fatalf("expected no ids, got %v", got)
	}
}
