package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

var tracer = otel.Tracer("service")

// CredentialService validates signed sign-in challenges. Stateless; the
// timestamp embedded in the message is the sole replay defense.
type CredentialService struct {
	window time.Duration
}

func NewCredentialService(window time.Duration) *CredentialService {
	return &CredentialService{window: window}
}

// allowance for clocks ahead of ours
const clockSkew = time.Minute

func (s *CredentialService) Verify(ctx context.Context, address, message, signature string) error {
	_, span := tracer.Start(ctx, "Credential.Service.Verify")
	defer span.End()

	issued, err := contextly.ParseChallenge(message)
	if err != nil {
		serr := domain.ErrMalformedMessage.WithReason(err.Error())
		span.RecordError(serr)
		return serr
	}

	// an old challenge is invalid regardless of signature correctness
	now := time.Now()
	if now.Sub(issued) > s.window {
		serr := domain.ErrExpiredChallenge.WithReason("challenge issued at " + issued.Format(time.RFC3339))
		span.RecordError(serr)
		return serr
	}
	if issued.Sub(now) > clockSkew {
		serr := domain.ErrExpiredChallenge.WithReason("challenge issued in the future")
		span.RecordError(serr)
		return serr
	}

	recovered, err := contextly.RecoverPersonalSigner(message, signature)
	if err != nil {
		serr := domain.ErrInvalidSignature.WithReason(err.Error())
		span.RecordError(serr)
		return serr
	}

	if contextly.NormalizeAddress(recovered) != contextly.NormalizeAddress(address) {
		serr := domain.ErrInvalidSignature.WithReason("recovered address mismatch")
		span.RecordError(serr)
		return serr
	}

	return nil
}
