// Package adminauth gates the operator-only endpoint (manual channel-state
// flush) behind a single bcrypt-hashed
// token, rather than the full user/JWT scheme an operator console doesn't
// need here.
package adminauth

import "golang.org/x/crypto/bcrypt"

// HashToken hashes an operator token with bcrypt, for storage in config.
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(b), err
}

// CheckToken compares a bcrypt hash against a presented token.
func CheckToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// Gate holds the configured operator-token hash and authorizes requests
// against it. An empty hash means admin endpoints are disabled entirely.
type Gate struct {
	hash string
}

// NewGate builds a Gate from a bcrypt hash (as produced by HashToken).
func NewGate(hash string) *Gate {
	return &Gate{hash: hash}
}

// Enabled reports whether any operator token is configured.
func (g *Gate) Enabled() bool {
	return g.hash != ""
}

// Authorize reports whether token matches the configured operator token.
// It always returns false when no token is configured, closing admin
// endpoints by default rather than leaving them open.
func (g *Gate) Authorize(token string) bool {
	if g.hash == "" {
		return false
	}
	return CheckToken(g.hash, token)
}
