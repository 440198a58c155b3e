// Package plan derives the execution strategy for a search from its
// shape alone. Planning is pure: no I/O, no clock, fully determined by
// the knowledge-base count and requested result size.
package plan

import "math"

// TopK bounds enforced at the request boundary.
const (
	MinTopK     = 1
	MaxTopK     = 100
	DefaultTopK = 10
)

// Plan captures the strategy decisions for one search execution.
type Plan struct {
	kbCount              int
	topK                 int
	useParallel          bool
	distanceThreshold    float64
	parallelLimit        int
	singleQueryOptimized bool
}

// New computes the plan for a search over kbCount knowledge bases
// returning topK results. Both inputs are assumed already validated.
func New(kbCount, topK int) Plan {
	p := Plan{
		kbCount:              kbCount,
		topK:                 topK,
		useParallel:          kbCount > 4 || (kbCount > 2 && topK > 50),
		distanceThreshold:    1.0,
		singleQueryOptimized: kbCount <= 2,
	}
	if kbCount > 3 {
		p.distanceThreshold = 0.8
	}
	p.parallelLimit = int(math.Ceil(float64(topK)/float64(kbCount))) + 5
	return p
}

// UseParallel reports whether per-KB queries run concurrently.
func (p Plan) UseParallel() bool { return p.useParallel }

// DistanceThreshold is the maximum cosine distance a vector match may
// have. Tighter when many knowledge bases compete for the result window.
func (p Plan) DistanceThreshold() float64 { return p.distanceThreshold }

// ParallelLimit is the per-KB result quota under parallel execution,
// slightly over the fair share so the merged set stays full after
// re-ranking.
func (p Plan) ParallelLimit() int { return p.parallelLimit }

// SingleQueryOptimized reports whether all knowledge bases fit in one
// store query.
func (p Plan) SingleQueryOptimized() bool { return p.singleQueryOptimized }

// KBCount returns the planned knowledge-base count.
func (p Plan) KBCount() int { return p.kbCount }

// TopK returns the planned result size.
func (p Plan) TopK() int { return p.topK }
