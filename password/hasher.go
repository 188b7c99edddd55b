// Package password provides the pluggable one-way hash used for primary
// credentials. The core treats hashing as an opaque hash/verify pair; the
// bundled implementation is argon2id in PHC string format.
package password

// Hasher is the contract the login flow depends on. Verify must be
// constant-time with respect to the hash comparison.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}
