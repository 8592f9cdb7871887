package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/clinicore/session-lease-service/internal/ports"
)

// tokenBytes is the entropy behind each bearer token.
const tokenBytes = 32

// encodedTokenLen is the base64url length of tokenBytes without padding.
const encodedTokenLen = 43

// OpaqueTokenMinter mints 256-bit random bearer tokens and fingerprints
// them with SHA-256. Only the hex fingerprint is ever persisted.
type OpaqueTokenMinter struct{}

func NewOpaqueTokenMinter() *OpaqueTokenMinter {
	return &OpaqueTokenMinter{}
}

func (m *OpaqueTokenMinter) Mint() (ports.LeaseToken, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return ports.LeaseToken{}, fmt.Errorf("read token entropy: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return ports.LeaseToken{
		Raw:  encoded,
		Hash: m.Hash(encoded),
	}, nil
}

func (m *OpaqueTokenMinter) Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (m *OpaqueTokenMinter) WellFormed(raw string) bool {
	if len(raw) != encodedTokenLen {
		return false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return false
	}
	return len(decoded) == tokenBytes
}
