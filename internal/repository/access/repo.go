// Package access resolves whether a caller may search a knowledge base.
package access

import (
	"context"
	"fmt"

	"github.com/hexleaf/kbsearch/internal/domain"
)

// store is the consumer interface for knowledge-base metadata reads (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo implements usecase/search.AccessGate over knowledge-base hashes.
type Repo struct {
	store store
}

// New creates an access repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func kbKey(kbID string) string {
	return domain.KeyPrefix + "kb:" + kbID
}

// CheckAccess reports whether the caller may read the knowledge base.
// A missing or deleted knowledge base is indistinguishable from a
// denied one: all three come back false.
func (r *Repo) CheckAccess(ctx context.Context, kbID string, caller domain.Caller) (bool, error) {
	fields, err := r.store.HGetAll(ctx, kbKey(kbID))
	if err != nil {
		return false, fmt.Errorf("check access %s: %w", kbID, err)
	}
	if len(fields) == 0 {
		return false, nil
	}
	if fields["deleted"] == "true" {
		return false, nil
	}

	if ws := fields["workspace_id"]; ws != "" && ws == caller.WorkspaceID {
		return true, nil
	}
	if owner := fields["owner_id"]; owner != "" && owner == caller.UserID {
		return true, nil
	}
	return false, nil
}
