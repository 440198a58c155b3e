// Package cost estimates the embedding spend of a search query.
// Estimates are advisory response metadata and never gate execution.
package cost

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// EmbeddingModel is the model the estimate is priced against.
const EmbeddingModel = "text-embedding-3-small"

const pricePerMillionTokens = 0.02

// Estimate is the priced token count for one query.
type Estimate struct {
	Model  string
	Tokens int
	Total  float64
}

// ForQuery estimates the embedding cost of the query text. Token counts
// come from the model's tokenizer when available; otherwise a character
// heuristic keeps the estimate usable offline.
func ForQuery(query string) (Estimate, error) {
	if query == "" {
		return Estimate{}, fmt.Errorf("cost estimate requires a query")
	}
	tokens := countTokens(query)
	return Estimate{
		Model:  EmbeddingModel,
		Tokens: tokens,
		Total:  float64(tokens) / 1_000_000 * pricePerMillionTokens,
	}, nil
}

func countTokens(text string) int {
	enc, err := tiktoken.EncodingForModel(EmbeddingModel)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		// roughly four characters per token for English text
		return len(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}
