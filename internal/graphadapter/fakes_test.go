package graphadapter

import "context"

// fakeRecord is a hand-rolled Record test double.
type fakeRecord struct {
	fields map[string]any
}

func (r *fakeRecord) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// fakeResult replays a fixed slice of records.
type fakeResult struct {
	records []map[string]any
	pos     int
}

func (r *fakeResult) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() Record {
	return &fakeRecord{fields: r.records[r.pos-1]}
}

// call records one Run invocation for assertions.
type call struct {
	cypher string
	params map[string]any
}

// fakeSession is a CypherRunner/Session test double that records every Run
// call and returns queued canned results in order, the same shape as
// pkg/repo's mockRunner/mockResult pair.
type fakeSession struct {
	calls   []call
	results []*fakeResult
	errs    []error
	idx     int
	closed  bool
}

func (s *fakeSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.calls = append(s.calls, call{cypher: cypher, params: params})
	var err error
	if s.idx < len(s.errs) {
		err = s.errs[s.idx]
	}
	var res *fakeResult
	if s.idx < len(s.results) {
		res = s.results[s.idx]
	} else {
		res = &fakeResult{}
	}
	s.idx++
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *fakeSession) ExecuteWrite(ctx context.Context, work func(CypherRunner) (any, error)) (any, error) {
	return work(s)
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

// fakeOpener always hands back the same session, so tests can inspect its
// recorded calls afterward.
type fakeOpener struct {
	sess *fakeSession
}

func (o *fakeOpener) OpenSession(context.Context) Session { return o.sess }
