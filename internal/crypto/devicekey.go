// Package crypto implements server-side hashing of scanner device keys.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashDeviceKey returns the Argon2id hash of a device key using the provided salt.
func HashDeviceKey(key, salt []byte) []byte {
	return argon2.IDKey(key, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyDeviceKey verifies a device key against the expected hash and salt.
func VerifyDeviceKey(key, salt, expected []byte) bool {
	got := HashDeviceKey(key, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
