package plan

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		kbCount       int
		topK          int
		parallel      bool
		threshold     float64
		parallelLimit int
		singleQuery   bool
	}{
		{
			name:    "one kb default topK",
			kbCount: 1, topK: 10,
			parallel: false, threshold: 1.0, parallelLimit: 15, singleQuery: true,
		},
		{
			name:    "two kbs stay single query",
			kbCount: 2, topK: 100,
			parallel: false, threshold: 1.0, parallelLimit: 55, singleQuery: true,
		},
		{
			name:    "three kbs small topK sequential",
			kbCount: 3, topK: 50,
			parallel: false, threshold: 1.0, parallelLimit: 22, singleQuery: false,
		},
		{
			name:    "three kbs large topK go parallel",
			kbCount: 3, topK: 51,
			parallel: true, threshold: 1.0, parallelLimit: 22, singleQuery: false,
		},
		{
			name:    "four kbs tighten threshold",
			kbCount: 4, topK: 10,
			parallel: false, threshold: 0.8, parallelLimit: 8, singleQuery: false,
		},
		{
			name:    "five kbs always parallel",
			kbCount: 5, topK: 20,
			parallel: true, threshold: 0.8, parallelLimit: 9, singleQuery: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.kbCount, tt.topK)
			if p.UseParallel() != tt.parallel {
				t.Errorf("UseParallel() = %v, want %v", p.UseParallel(), tt.parallel)
			}
			if p.DistanceThreshold() != tt.threshold {
				t.Errorf("DistanceThreshold() = %v, want %v", p.DistanceThreshold(), tt.threshold)
			}
			if p.ParallelLimit() != tt.parallelLimit {
				t.Errorf("ParallelLimit() = %d, want %d", p.ParallelLimit(), tt.parallelLimit)
			}
			if p.SingleQueryOptimized() != tt.singleQuery {
				t.Errorf("SingleQueryOptimized() = %v, want %v", p.SingleQueryOptimized(), tt.singleQuery)
			}
		})
	}
}
