package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/config"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/present/rest/presenter"
	"github.com/contextly/contextly-ledger/internal/usecase"
)

// RealtimeSource streams status events matching the listened addresses
// until ctx is done.
type RealtimeSource interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- contextly.Event)
}

type Handler struct {
	config       config.Config
	auth         *usecase.AuthUsecase
	contribution *usecase.ContributionUsecase
	earnings     *usecase.EarningsUsecase
	signal       RealtimeSource
}

func NewHandler(
	config config.Config,
	auth *usecase.AuthUsecase,
	contribution *usecase.ContributionUsecase,
	earnings *usecase.EarningsUsecase,
	signal RealtimeSource,
) *Handler {
	return &Handler{
		config:       config,
		auth:         auth,
		contribution: contribution,
		earnings:     earnings,
		signal:       signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/auth/challenge", h.handleChallenge)
	e.POST("/v1/auth/verify", h.handleVerify)
	e.POST("/v1/contributions", h.handleContribute)
	e.GET("/v1/earnings/:identity", h.handleEarnings)
	e.GET("/v1/session", h.handleSession)
	e.POST("/v1/session/refresh", h.handleRefresh)
	e.POST("/v1/session/revoke", h.handleRevoke)
	e.POST("/v1/identity/handle", h.handleLinkHandle)
	e.GET("/realtime", h.handleRealtime)
}

// requesterSession extracts the session stashed by the auth middleware.
func requesterSession(c echo.Context) (domain.Session, bool) {
	session, ok := c.Request().Context().Value(domain.RequesterSessionCtxKey).(domain.Session)
	return session, ok
}

type challengeRequest struct {
	Address string `json:"address"`
}

func (h *Handler) handleChallenge(c echo.Context) error {
	ctx := c.Request().Context()

	var req challengeRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	message, expiresAt, err := h.auth.Challenge(ctx, req.Address)
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, echo.Map{
		"message":   message,
		"expiresAt": expiresAt,
	})
}

type verifyRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

func (h *Handler) handleVerify(c echo.Context) error {
	ctx := c.Request().Context()

	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.auth.Verify(ctx, req.Address, req.Message, req.Signature)
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, echo.Map{
		"sessionToken": result.Token,
		"expiresAt":    result.Session.ExpiresAt,
		"identity":     result.Identity,
	})
}

type contributionRequest struct {
	ContentFingerprint string                     `json:"contentFingerprint"`
	Content            string                     `json:"content,omitempty"`
	Type               contextly.ContributionType `json:"type"`
	Signals            contextly.QualitySignals   `json:"signals"`
	Platform           string                     `json:"platform,omitempty"`
	CapturedAt         time.Time                  `json:"capturedAt"`
}

func (h *Handler) handleContribute(c echo.Context) error {
	ctx := c.Request().Context()

	session, ok := requesterSession(c)
	if !ok {
		return presenter.Unauthorized(c, domain.ErrUnauthenticated)
	}

	var req contributionRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if !req.Type.Valid() {
		return presenter.BadRequestMessage(c, fmt.Sprintf("unknown contribution type: %s", req.Type))
	}

	// callers may send raw content instead of a precomputed fingerprint
	if req.ContentFingerprint == "" && req.Content != "" {
		req.ContentFingerprint = contextly.Fingerprint(req.Content)
	}
	if !contextly.IsFingerprint(req.ContentFingerprint) {
		return presenter.BadRequestMessage(c, "contentFingerprint is not a valid fingerprint")
	}

	entry, err := h.contribution.Submit(ctx, session, contextly.ContributionCandidate{
		ContentFingerprint: req.ContentFingerprint,
		Type:               req.Type,
		Signals:            req.Signals,
		Platform:           req.Platform,
		CapturedAt:         req.CapturedAt,
	})
	if err != nil {
		return presenter.Error(c, err)
	}

	// duplicates resolve to the existing entry with the same 200
	return presenter.OK(c, echo.Map{
		"entryID":      entry.ID,
		"status":       entry.Status,
		"qualityScore": entry.QualityScore,
		"rewardAmount": entry.Reward,
	})
}

func (h *Handler) handleEarnings(c echo.Context) error {
	ctx := c.Request().Context()

	identity := c.Param("identity")
	if !contextly.IsWalletAddress(identity) {
		return presenter.BadRequestMessage(c, "identity is not a wallet address")
	}

	view, err := h.earnings.Totals(ctx, contextly.NormalizeAddress(identity))
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, view)
}

func (h *Handler) handleSession(c echo.Context) error {
	session, ok := requesterSession(c)
	if !ok {
		return presenter.Unauthorized(c, domain.ErrUnauthenticated)
	}

	return presenter.OK(c, echo.Map{
		"valid":     true,
		"sessionID": session.ID,
		"identity":  session.Identity,
		"method":    session.Method,
		"expiresAt": session.ExpiresAt,
	})
}

func (h *Handler) handleRefresh(c echo.Context) error {
	ctx := c.Request().Context()

	session, ok := requesterSession(c)
	if !ok {
		return presenter.Unauthorized(c, domain.ErrUnauthenticated)
	}

	result, err := h.auth.Refresh(ctx, session)
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, echo.Map{
		"sessionToken": result.Token,
		"expiresAt":    result.Session.ExpiresAt,
		"identity":     result.Identity,
	})
}

func (h *Handler) handleRevoke(c echo.Context) error {
	ctx := c.Request().Context()

	session, ok := requesterSession(c)
	if !ok {
		return presenter.Unauthorized(c, domain.ErrUnauthenticated)
	}

	if err := h.auth.Revoke(ctx, session.ID); err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, echo.Map{"status": "ok"})
}

type linkHandleRequest struct {
	Handle string `json:"handle"`
}

func (h *Handler) handleLinkHandle(c echo.Context) error {
	ctx := c.Request().Context()

	session, ok := requesterSession(c)
	if !ok {
		return presenter.Unauthorized(c, domain.ErrUnauthenticated)
	}

	var req linkHandleRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Handle == "" {
		return presenter.BadRequestMessage(c, "handle is required")
	}

	identity, err := h.auth.LinkHandle(ctx, session.Identity, req.Handle)
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, identity)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type      string   `json:"type"`
	Addresses []string `json:"addresses"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// cancellation stops the signal fan-out; the channels are never
	// closed so a blocked sender cannot hit a closed channel
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan contextly.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{}, 1)

	go func() {
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Addresses:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Addresses),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
