// Package document resolves document display names for search results.
package document

import (
	"context"
	"fmt"

	"github.com/hexleaf/kbsearch/internal/domain"
)

// store is the consumer interface for document metadata reads (ISP).
type store interface {
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo implements usecase/search.DocumentNames over document hashes.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func docKey(ref domain.DocumentRef) string {
	return domain.KeyPrefix + "doc:" + ref.KBID + ":" + ref.DocumentID
}

// Names resolves file names for the given documents in one pipelined
// round-trip. Soft-deleted and missing documents are left out of the
// returned map; callers fall back to an empty name.
func (r *Repo) Names(ctx context.Context, refs []domain.DocumentRef) (map[domain.DocumentRef]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = docKey(ref)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("document names: %w", err)
	}

	names := make(map[domain.DocumentRef]string, len(refs))
	for i, fields := range hashes {
		if len(fields) == 0 || fields["deleted"] == "true" {
			continue
		}
		if name := fields["file_name"]; name != "" {
			names[refs[i]] = name
		}
	}
	return names, nil
}
