package writer

import (
	"sort"

	"github.com/rickgao/aodata-ingest/internal/buffer"
)

// Dedup orders entries newest-first by arrival sequence and keeps the first
// entry per key, so the most recent observation of each identity wins.
// The input slice is reordered in place.
func Dedup[T any, K comparable](entries []buffer.Entry[T], key func(T) K) []buffer.Entry[T] {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Seq > entries[j].Seq
	})

	seen := make(map[K]struct{}, len(entries))
	unique := make([]buffer.Entry[T], 0, len(entries))
	for _, e := range entries {
		k := key(e.Value)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, e)
	}
	return unique
}

// values extracts the event values in entry order.
func values[T any](entries []buffer.Entry[T]) []T {
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
