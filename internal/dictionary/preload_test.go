package dictionary

import (
	"context"
	"testing"

	"github.com/boe-ingest/pipeline/internal/graphadapter"
)

type fakeMerger struct {
	calls [][]graphadapter.NodeRecord
	err   error
}

func (m *fakeMerger) BatchMergeNodes(_ context.Context, nodes []graphadapter.NodeRecord) error {
	m.calls = append(m.calls, nodes)
	return m.err
}

func TestPreloadAllCoversAllClasses(t *testing.T) {
	merger := &fakeMerger{}
	p := New(merger, nil)

	stats, err := p.PreloadAll(context.Background())
	if err != nil {
		t.Fatalf("preload all: %v", err)
	}
	for _, class := range []string{"Materia", "Departamento", "Rango"} {
		stat, ok := stats[class]
		if !ok {
			t.Fatalf("missing stats for class %s", class)
		}
		if stat.Merged == 0 {
			t.Fatalf("expected non-zero merged count for %s", class)
		}
	}
	if len(merger.calls) != 3 {
		t.Fatalf("expected one BatchMergeNodes call per class, got %d", len(merger.calls))
	}
}

func TestPreloadAllIsIdempotent(t *testing.T) {
	merger := &fakeMerger{}
	p := New(merger, nil)

	first, err := p.PreloadAll(context.Background())
	if err != nil {
		t.Fatalf("first preload: %v", err)
	}
	second, err := p.PreloadAll(context.Background())
	if err != nil {
		t.Fatalf("second preload: %v", err)
	}
	for class, stat := range first {
		if second[class].Merged != stat.Merged {
			t.Fatalf("class %s: expected stable merge count across runs, got %d then %d", class, stat.Merged, second[class].Merged)
		}
	}
}

func TestPreloadAllPropagatesAdapterFailure(t *testing.T) {
	merger := &fakeMerger{err: errBoom{}}
	p := New(merger, nil)

	if _, err := p.PreloadAll(context.Background()); err == nil {
		t.Fatalf("expected error to propagate from adapter failure")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestNodeRecordsUseCodeAsID(t *testing.T) {
	records := toNodeRecords("Rango", []Entry{{Code: 1300, Label: "Ley"}})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID != "1300" {
		t.Fatalf("expected id '1300', got %q", records[0].ID)
	}
	if records[0].Props["name"] != "Ley" {
		t.Fatalf("expected name prop 'Ley', got %v", records[0].Props["name"])
	}
}
