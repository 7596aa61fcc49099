package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/contextly/contextly-ledger"
	"github.com/contextly/contextly-ledger/internal/domain"
)

// SignalService fans out entry/batch status events over Redis pub/sub so
// every instance can serve realtime subscribers.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event contextly.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, domain.SignalChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards events whose identity matches one of the listened
// addresses. input carries address-list updates from the subscriber;
// output receives matching events until ctx is done.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- contextly.Event) {
	pubsub := s.rdb.Subscribe(ctx, domain.SignalChannel)
	defer pubsub.Close()

	listened := map[string]bool{}
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case addresses, ok := <-input:
			if !ok {
				return
			}
			listened = map[string]bool{}
			for _, address := range addresses {
				listened[contextly.NormalizeAddress(address)] = true
			}
		case message, ok := <-messages:
			if !ok {
				return
			}
			var event contextly.Event
			if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
				slog.ErrorContext(ctx, "undecodable signal event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			if event.Identity != "" && !listened[contextly.NormalizeAddress(event.Identity)] {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
