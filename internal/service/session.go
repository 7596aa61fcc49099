package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/jwt"
)

// SessionService mints self-contained session tokens and mirrors each
// session into Redis with the same TTL. The token alone proves integrity;
// the mirror is what makes revocation effective.
type SessionService struct {
	rdb            *redis.Client
	fqdn           string
	serviceAddress string
	privatekey     string
}

func NewSessionService(rdb *redis.Client, fqdn, serviceAddress, privatekey string) *SessionService {
	return &SessionService{
		rdb:            rdb,
		fqdn:           fqdn,
		serviceAddress: serviceAddress,
		privatekey:     privatekey,
	}
}

type sessionRecord struct {
	Identity  string               `json:"identity"`
	Method    contextly.AuthMethod `json:"method"`
	IssuedAt  int64                `json:"iat"`
	ExpiresAt int64                `json:"exp"`
}

func (s *SessionService) Issue(ctx context.Context, identity string, method contextly.AuthMethod, ttl time.Duration) (domain.Session, string, error) {
	ctx, span := tracer.Start(ctx, "Session.Service.Issue")
	defer span.End()

	now := time.Now()
	session := domain.Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Method:    method,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	token, err := jwt.Create(jwt.Claims{
		Issuer:         s.serviceAddress,
		Subject:        identity,
		Audience:       s.fqdn,
		SessionID:      session.ID,
		AuthMethod:     string(method),
		IssuedAt:       strconv.FormatInt(now.Unix(), 10),
		ExpirationTime: strconv.FormatInt(session.ExpiresAt.Unix(), 10),
	}, s.privatekey)
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, "", errors.Wrap(err, "token creation failed")
	}

	record, err := json.Marshal(sessionRecord{
		Identity:  identity,
		Method:    method,
		IssuedAt:  now.Unix(),
		ExpiresAt: session.ExpiresAt.Unix(),
	})
	if err != nil {
		return domain.Session{}, "", err
	}

	err = s.rdb.Set(ctx, domain.SessionKeyPrefix+session.ID, record, ttl).Err()
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, "", errors.Wrap(err, "session mirror write failed")
	}

	return session, token, nil
}

// Validate checks token integrity and expiry, then requires the mirror
// entry. A structurally valid token whose mirror is gone was revoked.
func (s *SessionService) Validate(ctx context.Context, token string) (domain.Session, error) {
	ctx, span := tracer.Start(ctx, "Session.Service.Validate")
	defer span.End()

	claims, err := jwt.Validate(token, s.serviceAddress)
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, domain.ErrUnauthenticated.WithReason(err.Error())
	}

	if claims.Audience != s.fqdn {
		return domain.Session{}, domain.ErrUnauthenticated.WithReason("token audience mismatch")
	}
	if claims.SessionID == "" {
		return domain.Session{}, domain.ErrUnauthenticated.WithReason("token carries no session id")
	}

	raw, err := s.rdb.Get(ctx, domain.SessionKeyPrefix+claims.SessionID).Result()
	if err == redis.Nil {
		return domain.Session{}, domain.ErrSessionRevoked
	}
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, errors.Wrap(err, "session mirror read failed")
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.Session{}, errors.Wrap(err, "corrupt session mirror")
	}

	return domain.Session{
		ID:        claims.SessionID,
		Identity:  record.Identity,
		Method:    record.Method,
		IssuedAt:  time.Unix(record.IssuedAt, 0),
		ExpiresAt: time.Unix(record.ExpiresAt, 0),
	}, nil
}

// Revoke deletes the mirror entry; idempotent.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "Session.Service.Revoke")
	defer span.End()

	return s.rdb.Del(ctx, domain.SessionKeyPrefix+sessionID).Err()
}
