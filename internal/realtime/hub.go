package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// EventContractStatus is pushed whenever a contract's status, version or hash changes.
const EventContractStatus = "contract.status"

// StatusEvent is the payload of EventContractStatus.
type StatusEvent struct {
	ContractID uuid.UUID             `json:"contract_id"`
	Status     models.ContractStatus `json:"status"`
	Version    int                   `json:"version"`
	Hash       string                `json:"hash"`
}

// Hub maintains contract_id -> set of connections and broadcasts messages.
// With Redis configured, events go through pub/sub so every instance delivers them once.
type Hub struct {
	// contractID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per contract
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes contract events for other instances.
type RedisPublisher interface {
	PublishContractEvent(contractID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to contract channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeContract(contractID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a contract room. Starts the Redis subscription for the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.ContractID] == nil {
		h.rooms[c.ContractID] = make(map[string]*Client)
		if h.redisSub != nil {
			id := c.ContractID
			cancel, err := h.redisSub.SubscribeContract(id, func(event string, payload []byte) {
				h.Broadcast(id, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("subscribe contract channel", zap.String("contract_id", id.String()), zap.Error(err))
			} else {
				h.subs[id] = cancel
			}
		}
	}
	h.rooms[c.ContractID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined contract", zap.String("client_id", c.ID), zap.String("contract_id", c.ContractID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.ContractID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.ContractID)
			if cancel, ok := h.subs[c.ContractID]; ok {
				cancel()
				delete(h.subs, c.ContractID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left contract", zap.String("client_id", c.ID), zap.String("contract_id", c.ContractID.String()))
}

// Broadcast sends a message to the local clients watching a contract.
func (h *Hub) Broadcast(contractID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[contractID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers an event to every instance. Without Redis it broadcasts locally.
func (h *Hub) Publish(contractID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		err := h.redis.PublishContractEvent(contractID, event, data)
		if err == nil {
			return
		}
		h.logger.Warn("publish contract event", zap.String("contract_id", contractID.String()), zap.Error(err))
	}
	h.Broadcast(contractID, event, json.RawMessage(data))
}

// PublishContract pushes the new state of c to its watchers.
func (h *Hub) PublishContract(c *models.Contract) {
	h.Publish(c.ID, EventContractStatus, StatusEvent{
		ContractID: c.ID,
		Status:     c.Status,
		Version:    c.Version,
		Hash:       string(c.CurrentHash),
	})
}

// Watchers returns the number of local clients watching a contract.
func (h *Hub) Watchers(contractID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[contractID])
}
