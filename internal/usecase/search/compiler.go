package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

const dateLayout = "2006-01-02"

// loadCatalogs fetches tag definitions for every knowledge base
// concurrently. Returns per-KB definitions plus a merged view keyed by
// display name where the first knowledge base in request order wins.
// A failed lookup degrades that knowledge base to an empty catalog: its
// results keep raw slot keys instead of display names. The first
// failure is still returned so the caller can refuse to resolve filters
// against an incomplete merged view.
func (s *Service) loadCatalogs(
	ctx context.Context, kbIDs []string,
) (map[string][]tag.Definition, map[string]tag.Definition, error) {
	perKB := make([][]tag.Definition, len(kbIDs))
	errs := make([]error, len(kbIDs))

	var wg sync.WaitGroup
	for i, kbID := range kbIDs {
		wg.Add(1)
		go func(i int, kbID string) {
			defer wg.Done()
			perKB[i], errs[i] = s.catalog.Definitions(ctx, kbID)
		}(i, kbID)
	}
	wg.Wait()

	byKB := make(map[string][]tag.Definition, len(kbIDs))
	merged := make(map[string]tag.Definition)
	var firstErr error
	for i, kbID := range kbIDs {
		if errs[i] != nil {
			s.logger.Warn("Tag catalog lookup failed",
				zap.String("kb_id", kbID), zap.Error(errs[i]))
			if firstErr == nil {
				firstErr = fmt.Errorf("load tag catalog %s: %w", kbID, errs[i])
			}
			continue
		}
		byKB[kbID] = perKB[i]
		for _, def := range perKB[i] {
			if _, seen := merged[def.DisplayName]; !seen {
				merged[def.DisplayName] = def
			}
		}
	}
	return byKB, merged, firstErr
}

// compile resolves raw filters against the merged catalog in two
// passes. Pass one accumulates hard failures (unknown tag, illegal
// operator, unparseable value) and reports them together. Pass two
// builds predicates, degrading a between with a bad upper bound to an
// equality on its lower bound.
func (s *Service) compile(filters []filter.Filter, merged map[string]tag.Definition) (*filter.Set, error) {
	type resolved struct {
		raw filter.Filter
		def tag.Definition
		op  tag.Operator
	}

	var fields []domain.FieldError
	accepted := make([]resolved, 0, len(filters))

	for i, f := range filters {
		fieldName := fmt.Sprintf("filters[%d]", i)

		def, found := merged[f.TagName]
		if !found {
			fields = append(fields, domain.FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("unknown tag %q", f.TagName),
			})
			continue
		}

		op := f.Operator
		if op == "" {
			op = tag.OpEq
		}
		if !def.FieldType.Allows(op) {
			fields = append(fields, domain.FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("operator %q not supported for %s tag %q", op, def.FieldType, f.TagName),
			})
			continue
		}

		if err := checkValue(def.FieldType, f.Value); err != nil {
			fields = append(fields, domain.FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("tag %q: %v", f.TagName, err),
			})
			continue
		}

		accepted = append(accepted, resolved{raw: f, def: def, op: op})
	}

	if len(fields) > 0 {
		return nil, domain.NewValidation(fields...)
	}

	set := filter.NewSet()
	for _, r := range accepted {
		p, err := s.buildPredicate(r.def, r.op, r.raw)
		if err != nil {
			s.logger.Debug("Dropping uncompilable filter",
				zap.String("tag", r.raw.TagName), zap.Error(err))
			continue
		}
		set.Add(p)
	}
	return set, nil
}

// checkValue verifies the primary value parses as the declared type.
func checkValue(ft tag.FieldType, value string) error {
	switch ft {
	case tag.TypeText:
		if value == "" {
			return fmt.Errorf("value is required")
		}
	case tag.TypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("value %q is not a number", value)
		}
	case tag.TypeDate:
		if _, err := time.ParseInLocation(dateLayout, value, time.UTC); err != nil {
			return fmt.Errorf("value %q is not a date (expected YYYY-MM-DD)", value)
		}
	case tag.TypeBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("value %q is not a boolean", value)
		}
	}
	return nil
}

func (s *Service) buildPredicate(def tag.Definition, op tag.Operator, raw filter.Filter) (filter.Predicate, error) {
	switch def.FieldType {
	case tag.TypeText:
		return filter.NewText(def.Slot, op, raw.Value)

	case tag.TypeNumber:
		v, _ := strconv.ParseFloat(raw.Value, 64)
		if op == tag.OpBetween {
			to, err := strconv.ParseFloat(raw.ValueTo, 64)
			if err != nil {
				s.logger.Debug("Degrading between to equality on lower bound",
					zap.String("tag", raw.TagName), zap.String("value_to", raw.ValueTo))
				return filter.NewNumber(def.Slot, tag.OpEq, v)
			}
			return filter.NewNumber(def.Slot, op, v, to)
		}
		return filter.NewNumber(def.Slot, op, v)

	case tag.TypeDate:
		v := mustParseDate(raw.Value)
		if op == tag.OpBetween {
			to, err := parseDate(raw.ValueTo)
			if err != nil {
				s.logger.Debug("Degrading between to equality on lower bound",
					zap.String("tag", raw.TagName), zap.String("value_to", raw.ValueTo))
				return filter.NewDate(def.Slot, tag.OpEq, v)
			}
			return filter.NewDate(def.Slot, op, v, to)
		}
		return filter.NewDate(def.Slot, op, v)

	case tag.TypeBoolean:
		return filter.NewBoolean(def.Slot, op, raw.Value == "true")
	}
	return filter.Predicate{}, fmt.Errorf("unknown field type %q", def.FieldType)
}

// parseDate converts YYYY-MM-DD to Unix seconds at UTC midnight, the
// storage representation of date slots.
func parseDate(s string) (int64, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// mustParseDate is for values already vetted by checkValue.
func mustParseDate(s string) int64 {
	v, _ := parseDate(s)
	return v
}
