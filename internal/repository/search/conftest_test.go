package search

import (
	"context"

	"github.com/hexleaf/kbsearch/internal/db"
)

// mockStore implements the store interface with canned results.
type mockStore struct {
	tagResult    *db.SearchResult
	tagErr       error
	vectorResult *db.SearchResult
	vectorErr    error

	lastTagQuery    *db.TagQuery
	lastVectorQuery *db.VectorQuery
}

func (m *mockStore) SearchByTags(_ context.Context, q *db.TagQuery) (*db.SearchResult, error) {
	m.lastTagQuery = q
	if m.tagErr != nil {
		return nil, m.tagErr
	}
	if m.tagResult == nil {
		return &db.SearchResult{}, nil
	}
	return m.tagResult, nil
}

func (m *mockStore) SearchByVector(_ context.Context, q *db.VectorQuery) (*db.SearchResult, error) {
	m.lastVectorQuery = q
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}
	if m.vectorResult == nil {
		return &db.SearchResult{}, nil
	}
	return m.vectorResult, nil
}

func chunkKey(kbID, chunkID string) string {
	return ChunkKeyPrefix + kbID + ":" + chunkID
}
