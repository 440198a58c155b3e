package domain

// KeyPrefix namespaces every key this service reads or writes in the store.
const KeyPrefix = "kbsearch:"

// Caller identifies the authenticated principal a search runs on behalf of.
// Access checks compare it against knowledge-base ownership.
type Caller struct {
	UserID      string
	WorkspaceID string
}

// IsZero reports whether no identity was established.
func (c Caller) IsZero() bool {
	return c.UserID == "" && c.WorkspaceID == ""
}

// DocumentRef identifies a document within a knowledge base.
type DocumentRef struct {
	KBID       string
	DocumentID string
}
