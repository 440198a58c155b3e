// Package request normalizes and validates the search request at the
// domain boundary. A Request that exists is well-formed.
package request

import (
	"fmt"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/search/plan"
)

// MaxQueryLength caps the semantic query text.
const MaxQueryLength = 4096

// Request is a validated search request.
type Request struct {
	kbIDs      []string
	query      string
	topK       int
	filters    []filter.Filter
	workflowID string
}

// New validates and normalizes the raw inputs. Knowledge-base ids are
// deduplicated with order preserved and empty entries dropped; a zero
// topK falls back to the default. Field failures are accumulated and
// reported together as one validation error.
func New(kbIDs []string, query string, topK int, filters []filter.Filter, workflowID string) (*Request, error) {
	var fields []domain.FieldError

	seen := make(map[string]struct{}, len(kbIDs))
	ids := make([]string, 0, len(kbIDs))
	for _, id := range kbIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		fields = append(fields, domain.FieldError{
			Field:   "knowledge_base_ids",
			Message: "at least one knowledge base id is required",
		})
	}

	if topK == 0 {
		topK = plan.DefaultTopK
	}
	if topK < plan.MinTopK || topK > plan.MaxTopK {
		fields = append(fields, domain.FieldError{
			Field:   "top_k",
			Message: fmt.Sprintf("must be between %d and %d", plan.MinTopK, plan.MaxTopK),
		})
	}

	if len(query) > MaxQueryLength {
		fields = append(fields, domain.FieldError{
			Field:   "query",
			Message: fmt.Sprintf("must not exceed %d characters", MaxQueryLength),
		})
	}
	if query == "" && len(filters) == 0 {
		fields = append(fields, domain.FieldError{
			Field:   "query",
			Message: "either a query or at least one tag filter is required",
		})
	}

	if len(fields) > 0 {
		return nil, domain.NewValidation(fields...)
	}

	return &Request{
		kbIDs:      ids,
		query:      query,
		topK:       topK,
		filters:    filters,
		workflowID: workflowID,
	}, nil
}

func (r *Request) KnowledgeBaseIDs() []string { return r.kbIDs }
func (r *Request) Query() string              { return r.query }
func (r *Request) TopK() int                  { return r.topK }
func (r *Request) Filters() []filter.Filter   { return r.filters }
func (r *Request) WorkflowID() string         { return r.workflowID }

// HasQuery reports whether semantic ranking applies.
func (r *Request) HasQuery() bool { return r.query != "" }

// HasFilters reports whether tag filtering applies.
func (r *Request) HasFilters() bool { return len(r.filters) > 0 }
