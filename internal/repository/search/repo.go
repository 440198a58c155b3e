// Package search adapts the store's FT queries to domain search results.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hexleaf/kbsearch/internal/db"
	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/search/result"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// IndexName is the FT index over chunk hashes.
const IndexName = domain.KeyPrefix + "chunk_idx"

// ChunkKeyPrefix is the hash key namespace for chunks. Full keys are
// ChunkKeyPrefix + kbID + ":" + chunkID.
const ChunkKeyPrefix = domain.KeyPrefix + "chunk:"

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchByTags(ctx context.Context, q *db.TagQuery) (*db.SearchResult, error)
	SearchByVector(ctx context.Context, q *db.VectorQuery) (*db.SearchResult, error)
}

// Repo implements usecase/search.Repository.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// returnFields lists the hash fields materialized into results.
func returnFields() []string {
	fields := []string{"content", "document_id", "chunk_index"}
	for _, s := range tag.AllSlots() {
		fields = append(fields, string(s))
	}
	return fields
}

// SearchByTags runs a filter-only search. Results carry no distance.
func (r *Repo) SearchByTags(
	ctx context.Context, kbIDs []string, filters *filter.Set, limit int,
) ([]*result.Result, error) {
	q := &db.TagQuery{
		IndexName:    IndexName,
		KBIDs:        kbIDs,
		Filters:      filters,
		Limit:        limit,
		ReturnFields: returnFields(),
	}

	sr, err := r.store.SearchByTags(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search by tags: %w", err)
	}

	return parseResults(sr), nil
}

// CandidateIDs runs a filter-only search returning chunk ids only,
// for use as the candidate set of a follow-up vector query.
func (r *Repo) CandidateIDs(
	ctx context.Context, kbIDs []string, filters *filter.Set, limit int,
) ([]string, error) {
	q := &db.TagQuery{
		IndexName: IndexName,
		KBIDs:     kbIDs,
		Filters:   filters,
		Limit:     limit,
		IDsOnly:   true,
	}

	sr, err := r.store.SearchByTags(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("candidate ids: %w", err)
	}

	ids := make([]string, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if _, chunkID, ok := parseChunkKey(entry.Key); ok {
			ids = append(ids, chunkID)
		}
	}
	return ids, nil
}

// SearchByVector runs a range-bounded vector search, optionally
// restricted to candidate chunk ids. Results arrive ascending by
// distance.
func (r *Repo) SearchByVector(
	ctx context.Context, kbIDs []string,
	vector []float32, threshold float64, limit int, candidateIDs []string,
) ([]*result.Result, error) {
	q := &db.VectorQuery{
		IndexName:    IndexName,
		KBIDs:        kbIDs,
		CandidateIDs: candidateIDs,
		Vector:       vector,
		Radius:       threshold,
		Limit:        limit,
		ReturnFields: returnFields(),
	}

	sr, err := r.store.SearchByVector(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search by vector: %w", err)
	}

	return parseResults(sr), nil
}

func parseResults(sr *db.SearchResult) []*result.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	results := make([]*result.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		kbID, chunkID, ok := parseChunkKey(entry.Key)
		if !ok {
			continue
		}
		results = append(results, parseEntry(kbID, chunkID, entry))
	}
	return results
}

// parseChunkKey splits a hash key into knowledge-base and chunk ids.
func parseChunkKey(key string) (kbID, chunkID string, ok bool) {
	rest, found := strings.CutPrefix(key, ChunkKeyPrefix)
	if !found {
		return "", "", false
	}
	kbID, chunkID, found = strings.Cut(rest, ":")
	if !found || kbID == "" || chunkID == "" {
		return "", "", false
	}
	return kbID, chunkID, true
}

func parseEntry(kbID, chunkID string, entry db.SearchEntry) *result.Result {
	var content, documentID string
	var chunkIndex int
	slotValues := make(map[tag.Slot]string)

	for k, v := range entry.Fields {
		switch k {
		case "content":
			content = v
		case "document_id":
			documentID = v
		case "chunk_index":
			if n, err := strconv.Atoi(v); err == nil {
				chunkIndex = n
			}
		default:
			if slot, err := tag.ParseSlot(k); err == nil && v != "" {
				slotValues[slot] = v
			}
		}
	}

	return result.New(chunkID, kbID, documentID, chunkIndex, content, entry.Distance, slotValues)
}
