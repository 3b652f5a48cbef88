// Package blob provides the reference store used to pass large payloads and
// job results out of band. Dispatch messages stay small; anything above the
// inline limit travels as a key into this store, resolved by the worker
// independently.
package blob

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("blob: object not found")

// ErrInvalidKey is returned for keys that escape the store's namespace.
var ErrInvalidKey = errors.New("blob: invalid key")

// Store is the contract for object storage backends.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// validKeySegment matches one path segment of a storage key.
var validKeySegment = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// ResultKey returns the canonical key for a job's stored output.
func ResultKey(runID, jobID string) string {
	return fmt.Sprintf("runs/%s/%s.json", runID, jobID)
}

// PayloadKey returns the canonical key for an offloaded dispatch payload.
func PayloadKey(runID, jobID string) string {
	return fmt.Sprintf("payloads/%s/%s.json", runID, jobID)
}
