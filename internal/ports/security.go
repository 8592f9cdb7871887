package ports

// LeaseToken pairs the raw bearer value handed to the caller with the hash
// that gets persisted. The raw value is never stored.
type LeaseToken struct {
	Raw  string
	Hash string
}

// TokenMinter mints and fingerprints opaque bearer tokens.
type TokenMinter interface {
	Mint() (LeaseToken, error)
	Hash(raw string) string
	// WellFormed reports whether raw has the shape of a minted token.
	// Garbled values are rejected before any storage lookup.
	WellFormed(raw string) bool
}
