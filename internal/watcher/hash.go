package watcher

import (
	"fmt"
	"hash/fnv"

	"mediawatch/internal/upstream"
)

// healthDigest returns a stable hex digest of a health-check list. An empty
// list digests to a non-empty string, so the empty string reliably means
// "no prior observation".
func healthDigest(items []upstream.HealthItem) string {
	h := fnv.New64a()
	for _, it := range items {
		_, _ = h.Write([]byte(it.Type))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(it.Message))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
