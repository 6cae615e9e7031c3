// Package password hashes and verifies user passwords with salted adaptive
// algorithms.
package password

import "fmt"

// Hasher turns a plaintext password into a stored digest and checks a
// candidate against it. Digests embed their own salt and parameters.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
	// MaxLength is the longest password in bytes the algorithm accepts.
	// Zero means unbounded.
	MaxLength() int
}

const (
	AlgorithmBcrypt = "bcrypt"
	AlgorithmArgon2 = "argon2id"
)

// New returns the hasher registered under name. An empty name selects bcrypt.
func New(name string, bcryptCost int) (Hasher, error) {
	switch name {
	case "", AlgorithmBcrypt:
		return NewBcryptHasher(bcryptCost), nil
	case AlgorithmArgon2:
		return NewArgon2Hasher(nil), nil
	default:
		return nil, fmt.Errorf("password: unknown hasher %q", name)
	}
}
