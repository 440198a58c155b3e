// Package catalog reads per-knowledge-base tag definitions: the mapping
// from user-facing tag names to typed slots.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// store is the consumer interface for tag catalog reads (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo implements usecase/search.TagCatalog over catalog hashes. Each
// hash field maps a display name to "slot|fieldType".
type Repo struct {
	store store
}

// New creates a catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func catalogKey(kbID string) string {
	return domain.KeyPrefix + "kb:" + kbID + ":tags"
}

// Definitions returns the tag definitions of one knowledge base.
// Malformed catalog entries are skipped; an empty catalog is valid.
func (r *Repo) Definitions(ctx context.Context, kbID string) ([]tag.Definition, error) {
	fields, err := r.store.HGetAll(ctx, catalogKey(kbID))
	if err != nil {
		return nil, fmt.Errorf("tag catalog %s: %w", kbID, err)
	}

	defs := make([]tag.Definition, 0, len(fields))
	for name, value := range fields {
		slotStr, typeStr, ok := strings.Cut(value, "|")
		if !ok {
			continue
		}
		def := tag.Definition{
			Slot:        tag.Slot(slotStr),
			DisplayName: name,
			FieldType:   tag.FieldType(typeStr),
		}
		if def.Validate() != nil {
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}
