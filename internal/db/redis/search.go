package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/hexleaf/kbsearch/internal/db"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// distanceField is the alias the vector operator yields the match
// distance under. Double underscore keeps it clear of slot columns.
const distanceField = "__dist"

// eligibilityClause restricts every query to chunks of live, searchable
// documents. The flags are denormalized onto chunk hashes at ingest.
const eligibilityClause = "@doc_status:{completed} @doc_enabled:{true} @doc_deleted:{false}"

// SearchByTags runs a pure tag-filtered FT.SEARCH. With IDsOnly set the
// query is issued NOCONTENT and entries carry keys only.
func (s *Store) SearchByTags(ctx context.Context, q *db.TagQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	queryStr := buildQuery(q.KBIDs, q.Filters, q.CandidateIDs)
	args := []string{q.IndexName, queryStr}

	if q.IDsOnly {
		args = append(args, "NOCONTENT")
	} else if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	args = append(args, "LIMIT", "0", strconv.Itoa(q.Limit), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	if q.IDsOnly {
		return parseKeysResult(raw)
	}
	return parseFieldsResult(raw)
}

// SearchByVector runs a range-bounded vector search via the VECTOR_RANGE
// operator. Results come back ascending by distance. VECTOR_RANGE keeps
// matches sitting exactly at the radius, so those are dropped here to
// make the bound strict.
func (s *Store) SearchByVector(ctx context.Context, q *db.VectorQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.Radius <= 0 {
		return nil, fmt.Errorf("radius must be positive")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	pre := buildQuery(q.KBIDs, q.Filters, q.CandidateIDs)
	vecPart := fmt.Sprintf("@embedding:[VECTOR_RANGE $radius $BLOB]=>{$YIELD_DISTANCE_AS: %s}", distanceField)
	var queryStr string
	if pre == "*" {
		queryStr = vecPart
	} else {
		queryStr = pre + " " + vecPart
	}

	returnFields := append(append([]string{}, q.ReturnFields...), distanceField)
	args := []string{q.IndexName, queryStr,
		"RETURN", strconv.Itoa(len(returnFields))}
	args = append(args, returnFields...)
	args = append(args,
		"SORTBY", distanceField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.Limit),
		"PARAMS", "4",
		"radius", strconv.FormatFloat(q.Radius, 'f', -1, 64),
		"BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := parseFieldsResult(raw)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		if distStr, ok := e.Fields[distanceField]; ok {
			if d, perr := strconv.ParseFloat(distStr, 64); perr == nil {
				e.Distance = d
			}
			delete(e.Fields, distanceField)
		}
	}
	res.Entries = dropAtRadius(res.Entries, q.Radius)
	return res, nil
}

// dropAtRadius removes entries whose distance reached the radius. The
// input is sorted ascending, but the filter scans everything because
// parse failures leave a zero distance in place.
func dropAtRadius(entries []db.SearchEntry, radius float64) []db.SearchEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.Distance < radius {
			kept = append(kept, e)
		}
	}
	return kept
}

// --- Result parsing ---

// parseFieldsResult handles the 2-stride RESP2 layout
// [total, key1, fields1, key2, fields2, ...].
func parseFieldsResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

// parseKeysResult handles the NOCONTENT 1-stride layout [total, key1, key2, ...].
func parseKeysResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		entries = append(entries, db.SearchEntry{Key: key})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query lowering ---

// buildQuery composes the conjunctive pre-filter: knowledge-base
// restriction, document eligibility, optional candidate restriction and
// compiled tag predicates. Returns "*" when nothing restricts the query.
func buildQuery(kbIDs []string, filters *filter.Set, candidateIDs []string) string {
	var parts []string

	if clause := tagUnionClause("kb_id", kbIDs); clause != "" {
		parts = append(parts, clause)
	}
	parts = append(parts, eligibilityClause)
	if clause := tagUnionClause("chunk_id", candidateIDs); clause != "" {
		parts = append(parts, clause)
	}
	for _, g := range filters.Groups() {
		parts = append(parts, buildGroup(g))
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// tagUnionClause builds @field:{a|b|c} over the escaped values.
func tagUnionClause(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", field, strings.Join(escaped, "|"))
}

// buildGroup lowers one slot's predicates. Multiple predicates on the
// same slot are alternatives and join with |.
func buildGroup(g filter.Group) string {
	preds := g.Predicates()
	clauses := make([]string, len(preds))
	for i, p := range preds {
		clauses[i] = buildPredicate(p)
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " | ") + ")"
}

func buildPredicate(p filter.Predicate) string {
	switch p.FieldType() {
	case tag.TypeText:
		return buildTextPredicate(p)
	case tag.TypeNumber, tag.TypeDate:
		return buildRangePredicate(p)
	case tag.TypeBoolean:
		return buildBooleanPredicate(p)
	}
	return ""
}

func buildTextPredicate(p filter.Predicate) string {
	slot := p.Slot()
	v := tagEscaper.Replace(p.Text())
	switch p.Operator() {
	case tag.OpEq:
		return fmt.Sprintf("@%s:{%s}", slot, v)
	case tag.OpNeq:
		return fmt.Sprintf("-@%s:{%s}", slot, v)
	case tag.OpContains:
		return fmt.Sprintf("@%s:{*%s*}", slot, v)
	case tag.OpNotContains:
		return fmt.Sprintf("-@%s:{*%s*}", slot, v)
	case tag.OpStartsWith:
		return fmt.Sprintf("@%s:{%s*}", slot, v)
	case tag.OpEndsWith:
		return fmt.Sprintf("@%s:{*%s}", slot, v)
	}
	return ""
}

func buildRangePredicate(p filter.Predicate) string {
	slot := p.Slot()
	v, to, _ := p.Number()
	switch p.Operator() {
	case tag.OpEq:
		return fmt.Sprintf("@%s:[%g %g]", slot, v, v)
	case tag.OpNeq:
		return fmt.Sprintf("-@%s:[%g %g]", slot, v, v)
	case tag.OpGT:
		return fmt.Sprintf("@%s:[(%g +inf]", slot, v)
	case tag.OpGTE:
		return fmt.Sprintf("@%s:[%g +inf]", slot, v)
	case tag.OpLT:
		return fmt.Sprintf("@%s:[-inf (%g]", slot, v)
	case tag.OpLTE:
		return fmt.Sprintf("@%s:[-inf %g]", slot, v)
	case tag.OpBetween:
		return fmt.Sprintf("@%s:[%g %g]", slot, v, to)
	}
	return ""
}

func buildBooleanPredicate(p filter.Predicate) string {
	slot := p.Slot()
	switch p.Operator() {
	case tag.OpEq:
		return fmt.Sprintf("@%s:{%s}", slot, p.Text())
	case tag.OpNeq:
		return fmt.Sprintf("-@%s:{%s}", slot, p.Text())
	}
	return ""
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
