// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

// Chunk splits items into ceil(len/maxBatch) near-equal batches. Sizes
// differ by at most one: 1200 items with a cap of 500 become three batches
// of 400 rather than 500+500+200.
func Chunk[T any](items []T, maxBatch int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if maxBatch <= 0 || len(items) <= maxBatch {
		return [][]T{items}
	}

	batchCount := (len(items) + maxBatch - 1) / maxBatch
	base := len(items) / batchCount
	extra := len(items) % batchCount

	batches := make([][]T, 0, batchCount)
	start := 0
	for i := 0; i < batchCount; i++ {
		size := base
		if i < extra {
			size++
		}
		batches = append(batches, items[start:start+size])
		start += size
	}
	return batches
}
