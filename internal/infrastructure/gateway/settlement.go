package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
	"github.com/contextly/contextly-ledger/internal/settlement"
)

// SettlementGateway talks to the external settlement relay: batch
// submissions go out over HTTP, confirmations come back over a
// websocket event feed.
type SettlementGateway struct {
	endpoint      string
	eventEndpoint string
	privatekey    string
	http          *http.Client
	submitted     *cache.Cache
}

func NewSettlementGateway(endpoint, eventEndpoint, privatekey string) *SettlementGateway {
	return &SettlementGateway{
		endpoint:      endpoint,
		eventEndpoint: eventEndpoint,
		privatekey:    privatekey,
		http:          &http.Client{Timeout: 30 * time.Second},
		submitted:     cache.New(10*time.Minute, 15*time.Minute),
	}
}

type submitRequest struct {
	BatchID    string   `json:"batchID"`
	EntryIDs   []string `json:"entryIDs"`
	TotalMilli int64    `json:"totalMilli"`
	Signature  string   `json:"signature"`
}

type submitResponse struct {
	TxRef string `json:"txRef"`
}

// SubmitBatch submits one batch and returns the relay's transaction
// reference. A repeat of a recently submitted batch id returns the
// cached reference instead of producing a second transaction.
func (g *SettlementGateway) SubmitBatch(ctx context.Context, batch domain.Batch) (string, error) {
	if cached, found := g.submitted.Get(batch.ID); found {
		return cached.(string), nil
	}

	payload := submitRequest{
		BatchID:    batch.ID,
		EntryIDs:   batch.EntryIDs,
		TotalMilli: int64(batch.Total),
	}

	unsigned, err := json.Marshal(payload)
	if err != nil {
		return "", domain.PermanentSettlementError("batch not serializable", err)
	}
	signature, err := contextly.SignBytes(unsigned, g.privatekey)
	if err != nil {
		return "", domain.PermanentSettlementError("batch signing failed", err)
	}
	payload.Signature = hexutil.Encode(signature)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", domain.PermanentSettlementError("batch not serializable", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.endpoint+"/v1/batches", bytes.NewReader(body))
	if err != nil {
		return "", domain.PermanentSettlementError("bad submit request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", domain.TransientSettlementError("settlement relay unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", domain.TransientSettlementError("unreadable relay response", err)
		}
		if result.TxRef == "" {
			return "", domain.TransientSettlementError("relay response without txRef", nil)
		}
		g.submitted.Set(batch.ID, result.TxRef, cache.DefaultExpiration)
		return result.TxRef, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", domain.PermanentSettlementError(
			fmt.Sprintf("relay rejected batch: %d %s", resp.StatusCode, string(detail)), nil)
	default:
		return "", domain.TransientSettlementError(
			fmt.Sprintf("relay error: %d", resp.StatusCode), nil)
	}
}

// Events dials the relay's websocket feed and streams settlement
// outcomes. The connection is redialed until ctx is done; the channel
// closes when ctx is cancelled.
func (g *SettlementGateway) Events(ctx context.Context) (<-chan domain.SettlementEvent, error) {
	out := make(chan domain.SettlementEvent, 16)

	go func() {
		defer close(out)
		for ctx.Err() == nil {
			if err := g.streamEvents(ctx, out); err != nil && ctx.Err() == nil {
				slog.Error("settlement event feed dropped",
					slog.String("error", err.Error()),
					slog.String("module", "gateway"),
				)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()

	return out, nil
}

func (g *SettlementGateway) streamEvents(ctx context.Context, out chan<- domain.SettlementEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.eventEndpoint, nil)
	if err != nil {
		return errors.Wrap(err, "event feed dial failed")
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event domain.SettlementEvent
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

var _ settlement.Client = (*SettlementGateway)(nil)
