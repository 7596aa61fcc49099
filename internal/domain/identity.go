package domain

import (
	"time"

	"github.com/contextly/contextly-ledger"
)

// Identity represents a wallet-backed account. Identities are never
// deleted, only deactivated.
type Identity struct {
	Address         string    `json:"address"`
	LinkedHandle    *string   `json:"linkedHandle,omitempty"`
	RegisteredAt    time.Time `json:"registeredAt"`
	ReputationScore float64   `json:"reputationScore"`
	Active          bool      `json:"active"`
}

// Session is a bounded-lifetime authenticated context derived from a
// verified credential. The token is self-contained; the mirrored store
// entry is what makes revocation effective.
type Session struct {
	ID        string              `json:"sessionID"`
	Identity  string              `json:"identity"`
	Method    contextly.AuthMethod `json:"authMethod"`
	IssuedAt  time.Time           `json:"issuedAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Revoked   bool                `json:"revoked"`
}

func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
