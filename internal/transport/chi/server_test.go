package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hexleaf/kbsearch/internal/domain"
)

func newTestServer() *Server {
	return NewServer(nil, nil, zap.NewNop())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestIDListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []string
	}{
		{"single string", `"kb-1"`, []string{"kb-1"}},
		{"array", `["kb-1", "kb-2"]`, []string{"kb-1", "kb-2"}},
		{"empty array", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got idList
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	var got idList
	if err := json.Unmarshal([]byte(`42`), &got); err == nil {
		t.Error("expected error for non-string element")
	}
}

func TestScalarStringCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"finance"`, "finance"},
		{"integer", `100`, "100"},
		{"float", `99.5`, "99.5"},
		{"bool true", `true`, "true"},
		{"bool false", `false`, "false"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scalarString(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("scalarString(%s): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("scalarString(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}

	if _, err := scalarString(json.RawMessage(`{"a": 1}`)); err == nil {
		t.Error("expected error for object value")
	}
	if _, err := scalarString(json.RawMessage(`[1, 2]`)); err == nil {
		t.Error("expected error for array value")
	}
}

func TestSearchRejectsMalformedBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	s.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != codeBadRequest {
		t.Errorf("code = %q, want %q", resp.Code, codeBadRequest)
	}
}

func TestSearchRejectsNonScalarFilterValue(t *testing.T) {
	s := newTestServer()
	body := `{"knowledge_base_ids": "kb-1", "filters": [{"tag_name": "department", "value": {"nested": true}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchValidationFailureListsFields(t *testing.T) {
	s := newTestServer()
	// no knowledge base ids and neither query nor filters
	body := `{"query": "", "top_k": 500}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != codeValidationFailed {
		t.Errorf("code = %q, want %q", resp.Code, codeValidationFailed)
	}
	if len(resp.Details) == 0 {
		t.Error("expected field-level details")
	}
}

func TestHandleDomainErrorMapping(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "access error",
			err:        domain.NewAccessError([]string{"kb-2", "kb-3"}),
			wantStatus: http.StatusNotFound,
			wantCode:   codeKBNotFound,
		},
		{
			name:       "bare not found sentinel",
			err:        domain.ErrKBNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   codeKBNotFound,
		},
		{
			name:       "unauthenticated",
			err:        domain.ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantCode:   codeUnauthorized,
		},
		{
			name:       "validation",
			err:        domain.NewValidation(domain.FieldError{Field: "top_k", Message: "out of range"}),
			wantStatus: http.StatusBadRequest,
			wantCode:   codeValidationFailed,
		},
		{
			name:       "embedding provider failure stays opaque",
			err:        domain.ErrEmbeddingProviderError,
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternalError,
		},
		{
			name:       "unknown error",
			err:        errors.New("redis: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handleDomainError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeError(t, rec)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if tt.wantCode == codeInternalError && resp.Message != "internal error" {
				t.Errorf("internal failures must not leak detail, got %q", resp.Message)
			}
		})
	}
}

func TestAccessErrorNamesKnowledgeBases(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()

	s.handleDomainError(rec, domain.NewAccessError([]string{"kb-2", "kb-5"}))

	resp := decodeError(t, rec)
	if len(resp.KnowledgeBaseIDs) != 2 || resp.KnowledgeBaseIDs[0] != "kb-2" || resp.KnowledgeBaseIDs[1] != "kb-5" {
		t.Errorf("knowledge_base_ids = %v, want [kb-2 kb-5]", resp.KnowledgeBaseIDs)
	}
}

func TestValidationErrorDetails(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()

	s.handleDomainError(rec, domain.NewValidation(
		domain.FieldError{Field: "filters[0]", Message: "unknown tag"},
		domain.FieldError{Field: "filters[2]", Message: "value is not a number"},
	))

	resp := decodeError(t, rec)
	if len(resp.Details) != 2 {
		t.Fatalf("details = %d, want 2", len(resp.Details))
	}
	if resp.Details[0].Field != "filters[0]" || resp.Details[0].Message != "unknown tag" {
		t.Errorf("details[0] = %+v", resp.Details[0])
	}
}
