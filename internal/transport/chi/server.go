// Package chi exposes the search service over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/search/filter"
	"github.com/hexleaf/kbsearch/internal/domain/search/request"
	"github.com/hexleaf/kbsearch/internal/domain/search/result"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
	healthuc "github.com/hexleaf/kbsearch/internal/usecase/health"
	searchuc "github.com/hexleaf/kbsearch/internal/usecase/search"
)

// Error codes returned in the response body.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeKBNotFound       = "knowledge_base_not_found"
	codeUnauthorized     = "unauthorized"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		health: health,
		logger: logger,
	}
	// Ordered: structured errors carry detail the plain sentinel
	// handlers would flatten, so they match first.
	s.errorHandlers = []errorHandler{
		validationHandler,
		accessHandler,
		sentinelHandler(domain.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthorized),
	}
	return s
}

// Routes mounts the API on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/v1/knowledge/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// --- Request DTOs ---

// idList accepts both a single JSON string and an array of strings, so
// callers searching one knowledge base can skip the array wrapper.
type idList []string

func (l *idList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = idList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	*l = ss
	return nil
}

type tagFilterDTO struct {
	TagName  string          `json:"tag_name"`
	Operator string          `json:"operator,omitempty"`
	Value    json.RawMessage `json:"value"`
	ValueTo  json.RawMessage `json:"value_to,omitempty"`
}

type searchRequestDTO struct {
	KnowledgeBaseIDs idList         `json:"knowledge_base_ids"`
	Query            string         `json:"query,omitempty"`
	TopK             int            `json:"top_k,omitempty"`
	Filters          []tagFilterDTO `json:"filters,omitempty"`
	WorkflowID       string         `json:"workflow_id,omitempty"`
}

// scalarString coerces a JSON scalar (string, number, boolean) to its
// canonical string form. Filter values arrive as whatever type the
// workflow editor serialized; compilation re-types them against the
// tag catalog.
func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", errors.New("filter value must be a string, number or boolean")
	}
}

func filtersFromDTO(dtos []tagFilterDTO) ([]filter.Filter, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]filter.Filter, 0, len(dtos))
	for _, d := range dtos {
		value, err := scalarString(d.Value)
		if err != nil {
			return nil, err
		}
		valueTo, err := scalarString(d.ValueTo)
		if err != nil {
			return nil, err
		}
		out = append(out, filter.Filter{
			TagName:  d.TagName,
			Operator: tag.Operator(d.Operator),
			Value:    value,
			ValueTo:  valueTo,
		})
	}
	return out, nil
}

// --- Response DTOs ---

type searchResultItem struct {
	ChunkID         string            `json:"chunk_id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	DocumentID      string            `json:"document_id"`
	DocumentName    string            `json:"document_name,omitempty"`
	ChunkIndex      int               `json:"chunk_index"`
	Content         string            `json:"content"`
	Similarity      float64           `json:"similarity"`
	Tags            map[string]string `json:"metadata,omitempty"`
}

type costDTO struct {
	Model         string  `json:"model"`
	Tokens        int     `json:"tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

type searchResponseDTO struct {
	Results          []searchResultItem `json:"results"`
	Query            string             `json:"query,omitempty"`
	KnowledgeBaseIDs []string           `json:"knowledge_base_ids"`
	TopK             int                `json:"top_k"`
	TotalResults     int                `json:"total_results"`
	Cost             *costDTO           `json:"cost_estimate,omitempty"`
}

type fieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Code             string          `json:"code"`
	Message          string          `json:"message"`
	Details          []fieldErrorDTO `json:"details,omitempty"`
	KnowledgeBaseIDs []string        `json:"knowledge_base_ids,omitempty"`
}

// --- Handlers ---

// Search handles POST /api/v1/knowledge/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var dto searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filters, err := filtersFromDTO(dto.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	req, err := request.New(dto.KnowledgeBaseIDs, dto.Query, dto.TopK, filters, dto.WorkflowID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	caller := CallerFromContext(r.Context())
	resp, err := s.search.Search(r.Context(), caller, req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseToDTO(resp))
}

func searchResponseToDTO(resp *searchuc.Response) searchResponseDTO {
	items := make([]searchResultItem, len(resp.Results))
	for i, r := range resp.Results {
		items[i] = resultToItem(r, resp.HasQuery)
	}
	dto := searchResponseDTO{
		Results:          items,
		Query:            resp.Query,
		KnowledgeBaseIDs: resp.KnowledgeBaseIDs,
		TopK:             resp.TopK,
		TotalResults:     len(items),
	}
	if resp.Cost != nil {
		dto.Cost = &costDTO{
			Model:         resp.Cost.Model,
			Tokens:        resp.Cost.Tokens,
			EstimatedCost: resp.Cost.Total,
		}
	}
	return dto
}

func resultToItem(r *result.Result, hasQuery bool) searchResultItem {
	return searchResultItem{
		ChunkID:         r.ChunkID(),
		KnowledgeBaseID: r.KnowledgeBaseID(),
		DocumentID:      r.DocumentID(),
		DocumentName:    r.DocumentName(),
		ChunkIndex:      r.ChunkIndex(),
		Content:         r.Content(),
		Similarity:      r.Similarity(hasQuery),
		Tags:            r.Tags(),
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// --- Error handling ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// validationHandler maps validation failures to 400 with per-field detail.
func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	resp := errorResponse{
		Code:    codeValidationFailed,
		Message: domain.ErrValidation.Error(),
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Details = make([]fieldErrorDTO, len(verr.Fields))
		for i, f := range verr.Fields {
			resp.Details[i] = fieldErrorDTO{Field: f.Field, Message: f.Message}
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return true
}

// accessHandler maps access failures to 404 naming the inaccessible
// ids. Unknown and forbidden knowledge bases share one answer.
func accessHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrKBNotFound) {
		return false
	}
	resp := errorResponse{
		Code:    codeKBNotFound,
		Message: domain.ErrKBNotFound.Error(),
	}
	var aerr *domain.AccessError
	if errors.As(err, &aerr) {
		resp.KnowledgeBaseIDs = aerr.InaccessibleIDs
	}
	writeJSON(w, http.StatusNotFound, resp)
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	// embedding and store failures land here: logged with detail,
	// answered without it
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
