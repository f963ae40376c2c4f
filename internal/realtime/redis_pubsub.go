package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// ContractChannel is the Redis channel carrying status events for one contract.
func ContractChannel(contractID uuid.UUID) string {
	return "contracts:events:" + contractID.String()
}

// envelope is what travels over Redis between server instances.
type envelope struct {
	ContractID uuid.UUID       `json:"contract_id"`
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	SentAt     time.Time       `json:"sent_at"`
}

// RedisPubSub fans contract events out across server instances.
type RedisPubSub struct {
	client         *redis.Client
	logger         *zap.Logger
	publishTimeout time.Duration
}

// NewRedisPubSub returns a bridge over client.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger, publishTimeout: defaultPublishTimeout}
}

// PublishContractEvent sends one event to every instance subscribed to the contract.
func (r *RedisPubSub) PublishContractEvent(contractID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(envelope{
		ContractID: contractID,
		Event:      event,
		Data:       payload,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode contract event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, ContractChannel(contractID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// SubscribeContract delivers the contract's events to handler until cancel is called.
// The subscription is confirmed before SubscribeContract returns.
func (r *RedisPubSub) SubscribeContract(contractID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := ContractChannel(contractID)
	ctx, stop := context.WithCancel(context.Background())
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		stop()
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("contract channel closed", zap.String("channel", channel))
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("malformed contract event", zap.String("channel", channel), zap.Error(err))
					continue
				}
				if env.ContractID != contractID {
					r.logger.Warn("contract event on wrong channel",
						zap.String("channel", channel),
						zap.String("contract_id", env.ContractID.String()),
					)
					continue
				}
				handler(env.Event, env.Data)
			}
		}
	}()
	return stop, nil
}
