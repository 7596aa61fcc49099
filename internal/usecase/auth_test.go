package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

// --- mocks ---

type mockVerifier struct {
	err    error
	called bool
}

func (m *mockVerifier) Verify(ctx context.Context, address, message, signature string) error {
	m.called = true
	return m.err
}

type mockIdentityRepo struct {
	identities map[string]domain.Identity
	reputation map[string]float64
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{
		identities: map[string]domain.Identity{},
		reputation: map[string]float64{},
	}
}

func (m *mockIdentityRepo) Upsert(ctx context.Context, address string) (domain.Identity, error) {
	if existing, ok := m.identities[address]; ok {
		return existing, nil
	}
	identity := domain.Identity{Address: address, RegisteredAt: time.Now(), Active: true}
	m.identities[address] = identity
	return identity, nil
}

func (m *mockIdentityRepo) Get(ctx context.Context, address string) (domain.Identity, error) {
	identity, ok := m.identities[address]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (m *mockIdentityRepo) AddReputation(ctx context.Context, address string, delta float64) error {
	m.reputation[address] += delta
	return nil
}

func (m *mockIdentityRepo) LinkHandle(ctx context.Context, address string, handle string) error {
	identity, ok := m.identities[address]
	if !ok {
		return domain.ErrNotFound
	}
	identity.LinkedHandle = &handle
	m.identities[address] = identity
	return nil
}

type mockSessionStore struct {
	issued  []domain.Session
	revoked []string
}

func (m *mockSessionStore) Issue(ctx context.Context, identity string, method contextly.AuthMethod, ttl time.Duration) (domain.Session, string, error) {
	session := domain.Session{
		ID:        "sess-" + identity,
		Identity:  identity,
		Method:    method,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	m.issued = append(m.issued, session)
	return session, "token-" + session.ID, nil
}

func (m *mockSessionStore) Validate(ctx context.Context, token string) (domain.Session, error) {
	return domain.Session{}, domain.ErrUnauthenticated
}

func (m *mockSessionStore) Revoke(ctx context.Context, sessionID string) error {
	m.revoked = append(m.revoked, sessionID)
	return nil
}

// --- tests ---

func TestAuthChallengeRejectsBadAddress(t *testing.T) {
	uc := NewAuthUsecase(&mockVerifier{}, newMockIdentityRepo(), &mockSessionStore{}, 5*time.Minute, time.Hour)

	if _, _, err := uc.Challenge(context.Background(), "not-an-address"); !errors.Is(err, domain.ErrMalformedMessage) {
		t.Fatalf("expected malformed message error, got %v", err)
	}
}

func TestAuthChallengeEmbedsTimestamp(t *testing.T) {
	uc := NewAuthUsecase(&mockVerifier{}, newMockIdentityRepo(), &mockSessionStore{}, 5*time.Minute, time.Hour)

	message, expiresAt, err := uc.Challenge(context.Background(), "0x000000000000000000000000000000000000dEaD")
	if err != nil {
		t.Fatalf("challenge failed: %v", err)
	}
	issued, err := contextly.ParseChallenge(message)
	if err != nil {
		t.Fatalf("challenge message not parseable: %v", err)
	}
	if expiresAt.Sub(issued) > 5*time.Minute+time.Second {
		t.Fatalf("expiry window too wide: %v", expiresAt.Sub(issued))
	}
}

func TestAuthVerifyIssuesWalletSession(t *testing.T) {
	store := &mockSessionStore{}
	identities := newMockIdentityRepo()
	uc := NewAuthUsecase(&mockVerifier{}, identities, store, 5*time.Minute, time.Hour)

	address := "0x000000000000000000000000000000000000dEaD"
	result, err := uc.Verify(context.Background(), address, "message", "signature")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected a session token")
	}
	if result.Session.Method != contextly.AuthMethodWallet {
		t.Fatalf("expected wallet session, got %s", result.Session.Method)
	}
	if result.Identity.Address != contextly.NormalizeAddress(address) {
		t.Fatalf("identity address not normalized: %s", result.Identity.Address)
	}

	// second verification reuses the identity
	again, err := uc.Verify(context.Background(), address, "message", "signature")
	if err != nil {
		t.Fatalf("second verify failed: %v", err)
	}
	if again.Identity.RegisteredAt != result.Identity.RegisteredAt {
		t.Fatalf("expected the same identity record")
	}
}

func TestAuthVerifyPropagatesCredentialErrors(t *testing.T) {
	verifier := &mockVerifier{err: domain.ErrInvalidSignature}
	store := &mockSessionStore{}
	uc := NewAuthUsecase(verifier, newMockIdentityRepo(), store, 5*time.Minute, time.Hour)

	_, err := uc.Verify(context.Background(), "0x000000000000000000000000000000000000dEaD", "message", "sig")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if len(store.issued) != 0 {
		t.Fatalf("no session must be issued on failed verification")
	}
}

func TestAuthRevoke(t *testing.T) {
	store := &mockSessionStore{}
	uc := NewAuthUsecase(&mockVerifier{}, newMockIdentityRepo(), store, 5*time.Minute, time.Hour)

	if err := uc.Revoke(context.Background(), "sess-1"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if len(store.revoked) != 1 || store.revoked[0] != "sess-1" {
		t.Fatalf("expected revoke to reach the store")
	}
}
