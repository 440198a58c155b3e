// Package result models search hits and the merge operations applied to
// them after per-KB execution.
package result

import (
	"sort"

	"github.com/hexleaf/kbsearch/internal/domain/tag"
)

// Result is one chunk hit. Storage fills the core fields; the assembler
// attaches the document name and display tags afterwards.
type Result struct {
	chunkID    string
	kbID       string
	documentID string
	chunkIndex int
	content    string
	distance   float64

	slotValues   map[tag.Slot]string
	documentName string
	tags         map[string]string
}

// New builds a hit from storage fields. slotValues holds the raw typed
// slot columns present on the chunk.
func New(chunkID, kbID, documentID string, chunkIndex int, content string, distance float64, slotValues map[tag.Slot]string) *Result {
	return &Result{
		chunkID:    chunkID,
		kbID:       kbID,
		documentID: documentID,
		chunkIndex: chunkIndex,
		content:    content,
		distance:   distance,
		slotValues: slotValues,
	}
}

func (r *Result) ChunkID() string                 { return r.chunkID }
func (r *Result) KnowledgeBaseID() string         { return r.kbID }
func (r *Result) DocumentID() string              { return r.documentID }
func (r *Result) ChunkIndex() int                 { return r.chunkIndex }
func (r *Result) Content() string                 { return r.content }
func (r *Result) Distance() float64               { return r.distance }
func (r *Result) SlotValues() map[tag.Slot]string { return r.slotValues }
func (r *Result) DocumentName() string            { return r.documentName }
func (r *Result) Tags() map[string]string         { return r.tags }

// SetDocumentName attaches the resolved document name.
func (r *Result) SetDocumentName(name string) { r.documentName = name }

// SetTags attaches the display-named tag values.
func (r *Result) SetTags(tags map[string]string) { r.tags = tags }

// Similarity converts the stored distance to a similarity score. Hits
// from filter-only searches carry no meaningful distance and score 1.
func (r *Result) Similarity(hasQuery bool) float64 {
	if !hasQuery {
		return 1
	}
	return 1 - r.distance
}

// SortByDistance re-ranks hits ascending by distance. The sort is
// stable so ties keep their arrival order. Required after any merge of
// independently ranked per-KB lists.
func SortByDistance(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].distance < results[j].distance
	})
}

// Truncate limits a hit list to at most n entries.
func Truncate(results []*Result, n int) []*Result {
	if len(results) <= n {
		return results
	}
	return results[:n]
}
