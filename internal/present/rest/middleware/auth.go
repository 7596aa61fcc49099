package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/service"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	sessions *service.SessionService
}

func NewAuthMiddleware(sessions *service.SessionService) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
	}
}

// IdentifyRequester resolves the Bearer token into a session and
// stashes requester keys in the request context. A missing or invalid
// token does not abort the request; handlers that need auth check for
// the keys themselves.
func (s *AuthMiddleware) IdentifyRequester(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyRequester")
		defer span.End()

		authHeader := c.Request().Header.Get("authorization")

		if authHeader != "" {
			split := strings.Split(authHeader, " ")
			if len(split) != 2 {
				span.RecordError(fmt.Errorf("invalid authentication header"))
				goto skipCheckAuthorization
			}

			authType, token := split[0], split[1]
			if authType != "Bearer" {
				span.RecordError(fmt.Errorf("only Bearer is acceptable"))
				goto skipCheckAuthorization
			}

			session, err := s.sessions.Validate(ctx, token)
			if err != nil {
				span.RecordError(errors.Wrap(err, "AuthMiddleware.IdentifyRequester: session validation failed"))
				goto skipCheckAuthorization
			}

			ctx = context.WithValue(ctx, domain.RequesterAddressCtxKey, session.Identity)
			ctx = context.WithValue(ctx, domain.RequesterSessionCtxKey, session)
			ctx = context.WithValue(ctx, domain.RequesterMethodCtxKey, string(session.Method))
			span.SetAttributes(attribute.String("RequesterAddress", session.Identity))
		}

	skipCheckAuthorization:
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
