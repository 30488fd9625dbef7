// Package id generates unique identifiers for parked requests and log
// entries.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a UUID v4 string.
func New() string {
	return uuid.NewString()
}

// Short returns a 16-character random hex id for user-facing contexts where
// brevity matters.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
