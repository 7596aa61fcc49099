package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

var tracer = otel.Tracer("usecase")

type AuthUsecase struct {
	verifier   CredentialVerifier
	identities IdentityRepository
	sessions   SessionStore
	window     time.Duration
	sessionTTL time.Duration
}

func NewAuthUsecase(
	verifier CredentialVerifier,
	identities IdentityRepository,
	sessions SessionStore,
	window time.Duration,
	sessionTTL time.Duration,
) *AuthUsecase {
	return &AuthUsecase{
		verifier:   verifier,
		identities: identities,
		sessions:   sessions,
		window:     window,
		sessionTTL: sessionTTL,
	}
}

// Challenge mints a sign-in message for the address. No server state is
// held; the embedded timestamp bounds the replay window.
func (uc *AuthUsecase) Challenge(ctx context.Context, address string) (string, time.Time, error) {
	_, span := tracer.Start(ctx, "Auth.Usecase.Challenge")
	defer span.End()

	if !contextly.IsWalletAddress(address) {
		err := domain.ErrMalformedMessage.WithReason("not a wallet address: " + address)
		span.RecordError(err)
		return "", time.Time{}, err
	}

	now := time.Now()
	return contextly.ComposeChallenge(now), now.Add(uc.window), nil
}

type VerifyResult struct {
	Identity domain.Identity
	Session  domain.Session
	Token    string
}

// Verify validates the signed challenge, creates or looks up the
// identity, and issues a wallet session.
func (uc *AuthUsecase) Verify(ctx context.Context, address, message, signature string) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Usecase.Verify")
	defer span.End()

	if err := uc.verifier.Verify(ctx, address, message, signature); err != nil {
		span.RecordError(err)
		return nil, err
	}

	identity, err := uc.identities.Upsert(ctx, contextly.NormalizeAddress(address))
	if err != nil {
		span.RecordError(errors.Wrap(err, "identity upsert failed"))
		return nil, err
	}

	session, token, err := uc.sessions.Issue(ctx, identity.Address, contextly.AuthMethodWallet, uc.sessionTTL)
	if err != nil {
		span.RecordError(errors.Wrap(err, "session issue failed"))
		return nil, err
	}

	return &VerifyResult{
		Identity: identity,
		Session:  session,
		Token:    token,
	}, nil
}

// Refresh issues a fresh session for an already-validated one.
func (uc *AuthUsecase) Refresh(ctx context.Context, session domain.Session) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Usecase.Refresh")
	defer span.End()

	identity, err := uc.identities.Get(ctx, session.Identity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	next, token, err := uc.sessions.Issue(ctx, identity.Address, contextly.AuthMethodToken, uc.sessionTTL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &VerifyResult{Identity: identity, Session: next, Token: token}, nil
}

// LinkHandle attaches an external profile handle to the identity.
func (uc *AuthUsecase) LinkHandle(ctx context.Context, address string, handle string) (domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Auth.Usecase.LinkHandle")
	defer span.End()

	if err := uc.identities.LinkHandle(ctx, address, handle); err != nil {
		span.RecordError(err)
		return domain.Identity{}, err
	}
	return uc.identities.Get(ctx, address)
}

// Revoke invalidates a session; idempotent.
func (uc *AuthUsecase) Revoke(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "Auth.Usecase.Revoke")
	defer span.End()

	return uc.sessions.Revoke(ctx, sessionID)
}
