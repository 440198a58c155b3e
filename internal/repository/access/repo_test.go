package access

import (
	"context"
	"errors"
	"testing"

	"github.com/hexleaf/kbsearch/internal/domain"
)

type mockStore struct {
	hashes  map[string]map[string]string
	err     error
	lastKey string
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.lastKey = key
	if m.err != nil {
		return nil, m.err
	}
	return m.hashes[key], nil
}

func TestCheckAccess(t *testing.T) {
	store := &mockStore{hashes: map[string]map[string]string{
		"kbsearch:kb:kb-ws": {"workspace_id": "ws-1", "owner_id": "other"},
		"kbsearch:kb:kb-own": {"workspace_id": "ws-9", "owner_id": "user-1"},
		"kbsearch:kb:kb-del": {"workspace_id": "ws-1", "deleted": "true"},
		"kbsearch:kb:kb-foreign": {"workspace_id": "ws-9", "owner_id": "other"},
	}}
	repo := New(store)
	caller := domain.Caller{UserID: "user-1", WorkspaceID: "ws-1"}

	tests := []struct {
		kbID string
		want bool
	}{
		{"kb-ws", true},
		{"kb-own", true},
		{"kb-del", false},
		{"kb-foreign", false},
		{"kb-missing", false},
	}
	for _, tt := range tests {
		got, err := repo.CheckAccess(context.Background(), tt.kbID, caller)
		if err != nil {
			t.Fatalf("CheckAccess(%s): %v", tt.kbID, err)
		}
		if got != tt.want {
			t.Errorf("CheckAccess(%s) = %v, want %v", tt.kbID, got, tt.want)
		}
	}

	if store.lastKey != "kbsearch:kb:kb-missing" {
		t.Errorf("key = %q, want kbsearch:kb:kb-missing", store.lastKey)
	}
}

func TestCheckAccessStoreError(t *testing.T) {
	repo := New(&mockStore{err: errors.New("down")})
	if _, err := repo.CheckAccess(context.Background(), "kb", domain.Caller{}); err == nil {
		t.Fatal("expected error")
	}
}
