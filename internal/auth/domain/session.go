package domain

import (
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
)

// Session is the per-shop credential record: the signing key pair that mints
// and verifies this shop's tokens, the fingerprint of the refresh token that
// is currently valid, and the fingerprints of every refresh token it has
// already replaced.
type Session struct {
	ID        string
	ShopID    string
	Algorithm string
	PublicKey string // PEM
	// PrivateKey is sealed at rest; it is never stored or returned in clear.
	PrivateKey string

	RefreshTokenHash       string
	UsedRefreshTokenHashes []string

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCurrent reports whether fingerprint is the live refresh token.
func (s Session) IsCurrent(fingerprint string) bool {
	return s.RefreshTokenHash != "" && cryptox.EqualFingerprints(s.RefreshTokenHash, fingerprint)
}

// WasUsed reports whether fingerprint was an earlier, already rotated token.
func (s Session) WasUsed(fingerprint string) bool {
	for _, h := range s.UsedRefreshTokenHashes {
		if cryptox.EqualFingerprints(h, fingerprint) {
			return true
		}
	}
	return false
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionPolicy decides what happens when a shop with a live session logs in
// again.
type SessionPolicy string

const (
	// SessionReplace drops the previous session together with its used set.
	SessionReplace SessionPolicy = "replace"
	// SessionReject refuses the new login.
	SessionReject SessionPolicy = "reject"
)

func (p SessionPolicy) Valid() bool {
	return p == SessionReplace || p == SessionReject
}
