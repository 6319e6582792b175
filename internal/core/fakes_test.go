package core

import (
	"context"
	"sort"
	"sync"

	"github.com/askpa/assistant/internal/vectorstore"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeVectors keeps records in memory and scores them by how close their
// first vector component is to the query's.
type fakeVectors struct {
	mu        sync.Mutex
	records   map[string]vectorstore.Record
	upserts   int
	queries   int
	upsertErr error
	queryErr  error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{records: make(map[string]vectorstore.Record)}
}

func (f *fakeVectors) EnsureCollection(context.Context) error { return nil }

func (f *fakeVectors) Upsert(_ context.Context, records []vectorstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeVectors) Query(_ context.Context, vector []float32, topK int, userID string) ([]vectorstore.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var matches []vectorstore.Match
	for _, r := range f.records {
		if r.Payload.UserID != userID {
			continue
		}
		d := r.Vector[0] - vector[0]
		if d < 0 {
			d = -d
		}
		matches = append(matches, vectorstore.Match{ID: r.ID, Score: 1 / (1 + d), Payload: r.Payload})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *fakeVectors) forUser(userID string) []vectorstore.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vectorstore.Record
	for _, r := range f.records {
		if r.Payload.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type fakeChat struct {
	prompts []Prompt
	answer  string
	err     error
}

func (f *fakeChat) Complete(_ context.Context, p Prompt) (string, error) {
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fixedCounter struct{ n int }

func (c fixedCounter) Count(string) (int, error) { return c.n, nil }
