package util

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams records the cost settings a hash was derived under. They
// are persisted next to each password and reset-token hash so existing
// hashes keep verifying after the defaults move.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

// DefaultArgon2idParams returns the costs used for newly derived hashes.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// DeriveArgon2idKey hashes a password or reset token under the given costs.
func DeriveArgon2idKey(secret string, salt []byte, params Argon2idParams) []byte {
	return argon2.IDKey([]byte(secret), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
}

// CompareArgon2idKey re-derives the key and compares in constant time.
func CompareArgon2idKey(secret string, salt []byte, params Argon2idParams, expected []byte) bool {
	key := DeriveArgon2idKey(secret, salt, params)
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expected) == 1
}
