// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lookup provides the building blocks for outbound lookups against
// rate-limited sources: a bounded retrying runner, a per-key memo cache, a
// minimum-interval request gate, and a balanced batch chunker.
// See docs/ARCHITECTURE § Lookup Engine.
package lookup

// Option is an explicit present/absent value. A "looked up, not found"
// result is a distinct state from "never looked up", which lets the cache
// remember definitive misses without re-querying them.
type Option[V any] struct {
	value V
	ok    bool
}

// Some wraps a present value.
func Some[V any](v V) Option[V] {
	return Option[V]{value: v, ok: true}
}

// None is the absent value.
func None[V any]() Option[V] {
	return Option[V]{}
}

// Get returns the value and whether it is present.
func (o Option[V]) Get() (V, bool) {
	return o.value, o.ok
}

// IsSome reports whether a value is present.
func (o Option[V]) IsSome() bool {
	return o.ok
}

// OrZero returns the value, or the zero value when absent.
func (o Option[V]) OrZero() V {
	return o.value
}
