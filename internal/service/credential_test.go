package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

func signChallenge(t *testing.T, message string) (address string, signature string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	sig[64] += 27
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestCredentialVerifyAccepts(t *testing.T) {
	svc := NewCredentialService(5 * time.Minute)

	message := contextly.ComposeChallenge(time.Now())
	address, signature := signChallenge(t, message)

	if err := svc.Verify(context.Background(), address, message, signature); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestCredentialVerifyIsCaseInsensitive(t *testing.T) {
	svc := NewCredentialService(5 * time.Minute)

	message := contextly.ComposeChallenge(time.Now())
	address, signature := signChallenge(t, message)

	if err := svc.Verify(context.Background(), contextly.NormalizeAddress(address), message, signature); err != nil {
		t.Fatalf("lowercased address must verify: %v", err)
	}
}

func TestCredentialVerifyRejectsExpiredChallenge(t *testing.T) {
	svc := NewCredentialService(5 * time.Minute)

	// correctly signed but outside the replay window
	message := contextly.ComposeChallenge(time.Now().Add(-6 * time.Minute))
	address, signature := signChallenge(t, message)

	err := svc.Verify(context.Background(), address, message, signature)
	if !errors.Is(err, domain.ErrExpiredChallenge) {
		t.Fatalf("expected expired challenge, got %v", err)
	}
}

func TestCredentialVerifyRejectsMalformedMessage(t *testing.T) {
	svc := NewCredentialService(5 * time.Minute)

	message := "Sign in to somewhere else: 2026-01-01T00:00:00Z"
	address, signature := signChallenge(t, message)

	err := svc.Verify(context.Background(), address, message, signature)
	if !errors.Is(err, domain.ErrMalformedMessage) {
		t.Fatalf("expected malformed message, got %v", err)
	}
}

func TestCredentialVerifyRejectsForeignSigner(t *testing.T) {
	svc := NewCredentialService(5 * time.Minute)

	message := contextly.ComposeChallenge(time.Now())
	_, signature := signChallenge(t, message)
	otherAddress, _ := signChallenge(t, message)

	err := svc.Verify(context.Background(), otherAddress, message, signature)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestCredentialVerifyRejectsGarbageSignature(t *testing.T) {
	svc := NewCredentialService(5 * time.Minute)

	message := contextly.ComposeChallenge(time.Now())
	address, _ := signChallenge(t, message)

	err := svc.Verify(context.Background(), address, message, "0xdeadbeef")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}
