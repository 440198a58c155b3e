package search

import (
	"context"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/search/result"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// Repository executes lowered queries against the chunk index.
type Repository interface {
	SearchByTags(ctx context.Context, kbIDs []string, filters *filter.Set, limit int) ([]*result.Result, error)
	CandidateIDs(ctx context.Context, kbIDs []string, filters *filter.Set, limit int) ([]string, error)
	SearchByVector(ctx context.Context, kbIDs []string, vector []float32, threshold float64, limit int, candidateIDs []string) ([]*result.Result, error)
}

// AccessGate resolves knowledge-base access for a caller.
type AccessGate interface {
	CheckAccess(ctx context.Context, kbID string, caller domain.Caller) (bool, error)
}

// TagCatalog provides the per-knowledge-base tag definitions.
type TagCatalog interface {
	Definitions(ctx context.Context, kbID string) ([]tag.Definition, error)
}

// DocumentNames resolves display names for result documents.
type DocumentNames interface {
	Names(ctx context.Context, refs []domain.DocumentRef) (map[domain.DocumentRef]string, error)
}
