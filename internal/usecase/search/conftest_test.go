package search

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/search/result"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

type tagCall struct {
	kbIDs []string
	limit int
}

type vectorCall struct {
	kbIDs      []string
	threshold  float64
	limit      int
	candidates []string
}

// mockRepo implements Repository. Per-KB results are keyed by the first
// knowledge base id of the call; calls are recorded under lock because
// parallel plans fan out concurrently.
type mockRepo struct {
	mu sync.Mutex

	tagResults    map[string][]*result.Result
	tagErr        error
	tagCalls      []tagCall
	candidates    []string
	candidateErr  error
	candidateCall int
	vectorResults map[string][]*result.Result
	vectorErr     error
	vectorCalls   []vectorCall
}

func (m *mockRepo) SearchByTags(_ context.Context, kbIDs []string, _ *filter.Set, limit int) ([]*result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagCalls = append(m.tagCalls, tagCall{kbIDs: kbIDs, limit: limit})
	if m.tagErr != nil {
		return nil, m.tagErr
	}
	return m.tagResults[kbIDs[0]], nil
}

func (m *mockRepo) CandidateIDs(_ context.Context, _ []string, _ *filter.Set, _ int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidateCall++
	if m.candidateErr != nil {
		return nil, m.candidateErr
	}
	return m.candidates, nil
}

func (m *mockRepo) SearchByVector(_ context.Context, kbIDs []string, _ []float32, threshold float64, limit int, candidates []string) ([]*result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectorCalls = append(m.vectorCalls, vectorCall{
		kbIDs: kbIDs, threshold: threshold, limit: limit, candidates: candidates,
	})
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	return m.vectorResults[kbIDs[0]], nil
}

// mockAccess implements AccessGate with a per-KB allow map.
type mockAccess struct {
	allowed map[string]bool
	err     error
}

func (m *mockAccess) CheckAccess(_ context.Context, kbID string, _ domain.Caller) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.allowed[kbID], nil
}

// mockCatalog implements TagCatalog with per-KB definitions. err fails
// every lookup; errs fails individual knowledge bases.
type mockCatalog struct {
	defs map[string][]tag.Definition
	errs map[string]error
	err  error
}

func (m *mockCatalog) Definitions(_ context.Context, kbID string) ([]tag.Definition, error) {
	if m.err != nil {
		return nil, m.err
	}
	if err := m.errs[kbID]; err != nil {
		return nil, err
	}
	return m.defs[kbID], nil
}

// mockDocs implements DocumentNames.
type mockDocs struct {
	names map[domain.DocumentRef]string
	err   error
}

func (m *mockDocs) Names(_ context.Context, refs []domain.DocumentRef) (map[domain.DocumentRef]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[domain.DocumentRef]string, len(refs))
	for _, ref := range refs {
		if name, ok := m.names[ref]; ok {
			out[ref] = name
		}
	}
	return out, nil
}

// mockEmbedder implements domain.Embedder.
type mockEmbedder struct {
	mu     sync.Mutex
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	repo     *mockRepo
	access   *mockAccess
	catalog  *mockCatalog
	docs     *mockDocs
	embedder *mockEmbedder
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     &mockRepo{},
		access:   &mockAccess{allowed: map[string]bool{}},
		catalog:  &mockCatalog{defs: map[string][]tag.Definition{}, errs: map[string]error{}},
		docs:     &mockDocs{names: map[domain.DocumentRef]string{}},
		embedder: &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}},
	}
	f.service = New(f.repo, f.access, f.catalog, f.docs, f.embedder, zap.NewNop())
	return f
}

func (f *fixture) allow(kbIDs ...string) {
	for _, id := range kbIDs {
		f.access.allowed[id] = true
	}
}

func testCaller() domain.Caller {
	return domain.Caller{UserID: "user-1", WorkspaceID: "ws-1"}
}

func hit(kbID, chunkID, docID string, distance float64) *result.Result {
	return result.New(chunkID, kbID, docID, 0, "content of "+chunkID, distance, nil)
}
