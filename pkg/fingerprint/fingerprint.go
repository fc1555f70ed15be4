// Package fingerprint derives deterministic cache keys from request identity.
package fingerprint

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Key computes a deterministic fingerprint for (requestType, input).
// encoding/json serializes map keys in sorted order, so two logically
// identical inputs produce the same fingerprint regardless of key ordering.
func Key(requestType string, input map[string]any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("canonicalize input: %w", err)
	}
	h := xxh3.New()
	_, _ = h.WriteString(requestType)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)
	return fmt.Sprintf("%s:%016x", requestType, h.Sum64()), nil
}

// Size returns the serialized byte length of v. It is the basis for both the
// inputSize feature and cache entry size estimates. Unserializable values
// count as zero bytes.
func Size(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
