// Package storage provides the narrow persistence abstraction used by the
// session core. Each storage tier (per-identity metadata, user accounts)
// gets its own bucket so failures and serialization are handled in one place.
package storage

import "errors"

var (
	// ErrNotFound is returned when no record exists under the given key.
	ErrNotFound = errors.New("record not found")
	// ErrBucketNotFound is returned when the bucket has never been written to.
	ErrBucketNotFound = errors.New("bucket not found")
)

// Repository defines the interface for keyed record storage.
type Repository interface {
	Put(bucket string, key string, value []byte) error
	Get(bucket string, key string) ([]byte, error)
	Delete(bucket string, key string) error
	List(bucket string) ([]string, error)
}
