// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rankings

import (
	"strconv"
	"strings"

	"github.com/pdiddy/paperfuse/pkg/types"
)

// Filter returns the records passing every predicate in spec. With no
// active predicate the input passes through untouched, metrics or not.
// With any predicate active, a record with no resolved metrics cannot
// demonstrate compliance and is dropped.
func Filter(spec types.FilterSpec, records []types.Record) []types.Record {
	if !spec.Active() {
		return records
	}

	kept := make([]types.Record, 0, len(records))
	for _, r := range records {
		if r.Metrics.IsZero() {
			continue
		}
		if passes(spec, r.Metrics) {
			kept = append(kept, r)
		}
	}
	return kept
}

func passes(spec types.FilterSpec, m types.RankingMetrics) bool {
	if spec.MinImpactFactor != nil && !atLeast(m.ImpactFactor, *spec.MinImpactFactor) {
		return false
	}
	if spec.MinJCI != nil && !atLeast(m.JCI, *spec.MinJCI) {
		return false
	}
	if spec.Partition != "" && !strings.Contains(m.Partition, spec.Partition) {
		return false
	}
	if spec.PartitionTop != "" && !strings.Contains(m.PartitionTop, spec.PartitionTop) {
		return false
	}
	if spec.PartitionBase != "" && !strings.Contains(m.PartitionBase, spec.PartitionBase) {
		return false
	}
	if spec.PartitionUp != "" && !strings.Contains(m.PartitionUp, spec.PartitionUp) {
		return false
	}
	return true
}

// atLeast parses value as a decimal and compares against min. A value that
// is absent or unparsable fails the predicate rather than sneaking past it.
func atLeast(value string, min float64) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return err == nil && f >= min
}
