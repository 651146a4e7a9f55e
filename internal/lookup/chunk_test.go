// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_Balances(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		maxBatch  int
		wantCount int
	}{
		{"fits in one", 300, 500, 1},
		{"exactly max", 500, 500, 1},
		{"just over", 501, 500, 2},
		{"three balanced", 1200, 500, 3},
		{"single item", 1, 500, 1},
		{"tiny batches", 10, 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.n)
			for i := range items {
				items[i] = i
			}

			batches := Chunk(items, tt.maxBatch)
			require.Len(t, batches, tt.wantCount)

			// Sizes differ by at most one and respect the cap.
			minSize, maxSize := tt.n, 0
			total := 0
			for _, b := range batches {
				assert.LessOrEqual(t, len(b), tt.maxBatch)
				if len(b) < minSize {
					minSize = len(b)
				}
				if len(b) > maxSize {
					maxSize = len(b)
				}
				total += len(b)
			}
			assert.LessOrEqual(t, maxSize-minSize, 1)
			assert.Equal(t, tt.n, total)

			// Concatenation preserves input order.
			idx := 0
			for _, b := range batches {
				for _, v := range b {
					assert.Equal(t, idx, v)
					idx++
				}
			}
		})
	}
}

func TestChunk_BalancedNotGreedy(t *testing.T) {
	items := make([]int, 1200)
	batches := Chunk(items, 500)
	require.Len(t, batches, 3)
	// 400+400+400, not 500+500+200.
	for _, b := range batches {
		assert.Len(t, b, 400)
	}
}

func TestChunk_Empty(t *testing.T) {
	assert.Nil(t, Chunk([]string(nil), 500))
}
