// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short truncates a hex digest to n characters.
func Short(digest string, n int) string {
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}

// Fingerprint returns a stable digest of v's JSON encoding. Struct fields
// encode in declaration order and map keys are sorted, so equal inputs
// always produce equal fingerprints.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return SHA256(data), nil
}

// CacheKey namespaces a fingerprint for use as a cache or storage key.
func CacheKey(namespace, fingerprint string) string {
	return namespace + ":" + Short(fingerprint, 32)
}
