// Package search orchestrates hybrid knowledge-base search: access
// resolution, filter compilation, planned execution and result assembly.
package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/cost"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/search/plan"
	"github.com/hexleaf/kbsearch/internal/domain/search/request"
	"github.com/hexleaf/kbsearch/internal/domain/search/result"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// candidateCap bounds the tag phase of a combined search. The candidate
// set becomes a disjunction in the follow-up vector query, so it must
// stay well under the query size limit.
const candidateCap = 1000

// Service implements the search use case.
type Service struct {
	repo     Repository
	access   AccessGate
	catalog  TagCatalog
	docs     DocumentNames
	embedder domain.Embedder
	logger   *zap.Logger
}

// New creates a search service.
func New(
	repo Repository,
	access AccessGate,
	catalog TagCatalog,
	docs DocumentNames,
	embedder domain.Embedder,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:     repo,
		access:   access,
		catalog:  catalog,
		docs:     docs,
		embedder: embedder,
		logger:   logger,
	}
}

// Response is the assembled outcome of one search.
type Response struct {
	Results          []*result.Result
	HasQuery         bool
	Query            string
	KnowledgeBaseIDs []string
	TopK             int
	Cost             *cost.Estimate
}

type embedOutcome struct {
	res domain.EmbeddingResult
	err error
}

// Search runs a validated request on behalf of the caller.
func (s *Service) Search(ctx context.Context, caller domain.Caller, req *request.Request) (*Response, error) {
	if caller.IsZero() {
		return nil, domain.ErrUnauthenticated
	}
	kbIDs := req.KnowledgeBaseIDs()

	// The embedding round-trip dominates latency, so it starts before
	// access checks and compilation and is awaited only where needed.
	var embedCh chan embedOutcome
	if req.HasQuery() {
		embedCh = make(chan embedOutcome, 1)
		go func() {
			res, err := s.embedder.Embed(ctx, req.Query())
			embedCh <- embedOutcome{res: res, err: err}
		}()
	}

	if err := s.checkAccess(ctx, kbIDs, caller); err != nil {
		return nil, err
	}

	// A catalog failure only blocks requests whose filters need the
	// merged view to resolve; for everything else the catalog is
	// enrichment and the affected knowledge bases degrade to raw slot
	// keys during assembly.
	byKB, merged, catErr := s.loadCatalogs(ctx, kbIDs)

	var filterSet *filter.Set
	var err error
	if req.HasFilters() {
		if catErr != nil {
			return nil, catErr
		}
		filterSet, err = s.compile(req.Filters(), merged)
		if err != nil {
			return nil, err
		}
	}

	p := plan.New(len(kbIDs), req.TopK())

	s.logger.Debug("Executing search",
		zap.Int("kb_count", len(kbIDs)),
		zap.Int("top_k", req.TopK()),
		zap.Bool("has_query", req.HasQuery()),
		zap.Bool("has_filters", req.HasFilters()),
		zap.Bool("parallel", p.UseParallel()),
		zap.String("workflow_id", req.WorkflowID()),
	)

	var results []*result.Result
	switch {
	case req.HasQuery() && !filterSet.IsEmpty():
		results, err = s.searchCombined(ctx, kbIDs, filterSet, p, embedCh)
	case req.HasQuery():
		results, err = s.searchVector(ctx, kbIDs, p, embedCh)
	default:
		results, err = s.searchTags(ctx, kbIDs, filterSet, p)
	}
	if err != nil {
		return nil, err
	}

	s.assemble(ctx, results, byKB)

	resp := &Response{
		Results:          results,
		HasQuery:         req.HasQuery(),
		Query:            req.Query(),
		KnowledgeBaseIDs: kbIDs,
		TopK:             req.TopK(),
	}
	if req.HasQuery() {
		if est, cerr := cost.ForQuery(req.Query()); cerr == nil {
			resp.Cost = &est
		} else {
			s.logger.Warn("Cost estimate failed", zap.Error(cerr))
		}
	}
	return resp, nil
}

// checkAccess verifies every knowledge base concurrently. A single
// inaccessible id fails the whole request, naming exactly the ids the
// caller may not read.
func (s *Service) checkAccess(ctx context.Context, kbIDs []string, caller domain.Caller) error {
	allowed := make([]bool, len(kbIDs))
	errs := make([]error, len(kbIDs))

	var wg sync.WaitGroup
	for i, kbID := range kbIDs {
		wg.Add(1)
		go func(i int, kbID string) {
			defer wg.Done()
			allowed[i], errs[i] = s.access.CheckAccess(ctx, kbID, caller)
		}(i, kbID)
	}
	wg.Wait()

	var inaccessible []string
	for i, kbID := range kbIDs {
		if errs[i] != nil {
			return fmt.Errorf("check access %s: %w", kbID, errs[i])
		}
		if !allowed[i] {
			inaccessible = append(inaccessible, kbID)
		}
	}
	if len(inaccessible) > 0 {
		return domain.NewAccessError(inaccessible)
	}
	return nil
}

func awaitEmbedding(ctx context.Context, ch chan embedOutcome) ([]float32, error) {
	select {
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("embed query: %w", out.err)
		}
		return out.res.Embedding, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// searchCombined runs the two-phase tag+vector path: the tag phase
// collects candidate chunk ids with one global query, the vector phase
// ranks only those under the same plan rules as a semantic-only search.
// An empty candidate set returns immediately, before the embedding is
// even awaited.
func (s *Service) searchCombined(
	ctx context.Context, kbIDs []string,
	filterSet *filter.Set, p plan.Plan, embedCh chan embedOutcome,
) ([]*result.Result, error) {
	candidates, err := s.repo.CandidateIDs(ctx, kbIDs, filterSet, candidateCap)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	vec, err := awaitEmbedding(ctx, embedCh)
	if err != nil {
		return nil, err
	}
	return s.runVector(ctx, kbIDs, vec, p, candidates)
}

// searchVector runs the semantic-only path.
func (s *Service) searchVector(
	ctx context.Context, kbIDs []string, p plan.Plan, embedCh chan embedOutcome,
) ([]*result.Result, error) {
	vec, err := awaitEmbedding(ctx, embedCh)
	if err != nil {
		return nil, err
	}
	return s.runVector(ctx, kbIDs, vec, p, nil)
}

// runVector executes the vector phase under the plan. Under parallel
// execution each knowledge base is queried with a per-KB quota and the
// merged list is re-ranked by distance before truncation: per-KB lists
// are each sorted, but their concatenation is not.
func (s *Service) runVector(
	ctx context.Context, kbIDs []string, vec []float32, p plan.Plan, candidates []string,
) ([]*result.Result, error) {
	if !p.UseParallel() {
		return s.repo.SearchByVector(ctx, kbIDs, vec, p.DistanceThreshold(), p.TopK(), candidates)
	}

	merged, err := s.fanOut(ctx, kbIDs, func(ctx context.Context, kbID string) ([]*result.Result, error) {
		return s.repo.SearchByVector(ctx, []string{kbID}, vec, p.DistanceThreshold(), p.ParallelLimit(), candidates)
	})
	if err != nil {
		return nil, err
	}

	result.SortByDistance(merged)
	return result.Truncate(merged, p.TopK()), nil
}

// searchTags runs the filter-only path. Results carry no ranking
// signal, so the parallel merge concatenates in knowledge-base order
// without re-sorting.
func (s *Service) searchTags(
	ctx context.Context, kbIDs []string, filterSet *filter.Set, p plan.Plan,
) ([]*result.Result, error) {
	if !p.UseParallel() {
		return s.repo.SearchByTags(ctx, kbIDs, filterSet, p.TopK())
	}

	merged, err := s.fanOut(ctx, kbIDs, func(ctx context.Context, kbID string) ([]*result.Result, error) {
		return s.repo.SearchByTags(ctx, []string{kbID}, filterSet, p.ParallelLimit())
	})
	if err != nil {
		return nil, err
	}
	return result.Truncate(merged, p.TopK()), nil
}

// fanOut queries each knowledge base concurrently and concatenates the
// per-KB lists in request order.
func (s *Service) fanOut(
	ctx context.Context, kbIDs []string,
	query func(ctx context.Context, kbID string) ([]*result.Result, error),
) ([]*result.Result, error) {
	lists := make([][]*result.Result, len(kbIDs))
	errs := make([]error, len(kbIDs))

	var wg sync.WaitGroup
	for i, kbID := range kbIDs {
		wg.Add(1)
		go func(i int, kbID string) {
			defer wg.Done()
			lists[i], errs[i] = query(ctx, kbID)
		}(i, kbID)
	}
	wg.Wait()

	var merged []*result.Result
	for i := range lists {
		if errs[i] != nil {
			return nil, fmt.Errorf("knowledge base %s: %w", kbIDs[i], errs[i])
		}
		merged = append(merged, lists[i]...)
	}
	return merged, nil
}

// assemble enriches raw hits with document names and display-named
// tags. Name lookup failures degrade to empty names rather than
// failing a search that already produced hits.
func (s *Service) assemble(ctx context.Context, results []*result.Result, catalogs map[string][]tag.Definition) {
	if len(results) == 0 {
		return
	}

	refs := lo.Uniq(lo.Map(results, func(r *result.Result, _ int) domain.DocumentRef {
		return domain.DocumentRef{KBID: r.KnowledgeBaseID(), DocumentID: r.DocumentID()}
	}))
	names, err := s.docs.Names(ctx, refs)
	if err != nil {
		s.logger.Warn("Document name lookup failed", zap.Error(err))
		names = nil
	}

	bySlot := make(map[string]map[tag.Slot]tag.Definition, len(catalogs))
	for kbID, defs := range catalogs {
		m := make(map[tag.Slot]tag.Definition, len(defs))
		for _, d := range defs {
			m[d.Slot] = d
		}
		bySlot[kbID] = m
	}

	for _, r := range results {
		ref := domain.DocumentRef{KBID: r.KnowledgeBaseID(), DocumentID: r.DocumentID()}
		if name, ok := names[ref]; ok {
			r.SetDocumentName(name)
		}
		r.SetTags(displayTags(r.SlotValues(), bySlot[r.KnowledgeBaseID()]))
	}
}

// displayTags maps raw slot values to display-named tags. Slots absent
// from the knowledge base's catalog keep their raw slot key; date slots
// are formatted back from Unix seconds to YYYY-MM-DD.
func displayTags(slotValues map[tag.Slot]string, defs map[tag.Slot]tag.Definition) map[string]string {
	if len(slotValues) == 0 {
		return nil
	}
	out := make(map[string]string, len(slotValues))
	for slot, v := range slotValues {
		def, ok := defs[slot]
		if !ok {
			out[string(slot)] = v
			continue
		}
		if def.FieldType == tag.TypeDate {
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				v = time.Unix(ts, 0).UTC().Format(dateLayout)
			}
		}
		out[def.DisplayName] = v
	}
	return out
}
