// Package testutils provides fixtures shared by docodb tests.
package testutils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// RandomString generates a random hex string of n bytes.
func RandomString(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// RandomHash generates a random 40-character SHA-1 hash.
func RandomHash() string {
	return RandomString(20)
}

// RandomPayload returns n random bytes.
func RandomPayload(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// HashWithPrefix returns a 40-character hash starting with prefix, padded with
// fill.
func HashWithPrefix(prefix string, fill byte) string {
	if len(prefix) >= 40 {
		return prefix[:40]
	}
	return prefix + strings.Repeat(string(fill), 40-len(prefix))
}
