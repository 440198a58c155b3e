package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hexleaf/kbsearch/internal/domain"
)

func callerCapturingHandler(captured *domain.Caller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthMiddleware(t *testing.T) {
	creds := []Credential{
		{Key: "key-alpha", Caller: domain.Caller{UserID: "user-1", WorkspaceID: "ws-1"}},
		{Key: "key-beta", Caller: domain.Caller{UserID: "user-2", WorkspaceID: "ws-2"}},
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCaller domain.Caller
	}{
		{
			name:       "valid key",
			header:     "Bearer key-alpha",
			wantStatus: http.StatusOK,
			wantCaller: domain.Caller{UserID: "user-1", WorkspaceID: "ws-1"},
		},
		{
			name:       "second key maps to its own caller",
			header:     "Bearer key-beta",
			wantStatus: http.StatusOK,
			wantCaller: domain.Caller{UserID: "user-2", WorkspaceID: "ws-2"},
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			header:     "Basic key-alpha",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown key",
			header:     "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured domain.Caller
			handler := BearerAuthMiddleware(creds)(callerCapturingHandler(&captured))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && captured != tt.wantCaller {
				t.Errorf("caller = %+v, want %+v", captured, tt.wantCaller)
			}
		})
	}
}

func TestBearerAuthExemptPaths(t *testing.T) {
	creds := []Credential{{Key: "key-alpha", Caller: domain.Caller{UserID: "u", WorkspaceID: "w"}}}

	for _, path := range []string{"/health", "/metrics"} {
		var captured domain.Caller
		handler := BearerAuthMiddleware(creds)(callerCapturingHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without credentials", path, rec.Code)
		}
	}
}

func TestBearerAuthNoCredentialsRunsAsLocal(t *testing.T) {
	var captured domain.Caller
	handler := BearerAuthMiddleware(nil)(callerCapturingHandler(&captured))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured != localCaller {
		t.Errorf("caller = %+v, want local fallback", captured)
	}
	if captured.IsZero() {
		t.Error("local fallback caller must not be zero")
	}
}
