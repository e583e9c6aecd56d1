// Package realtime keeps customer-facing display clients in sync with gift
// activity. A Hub holds a process-local projection of recent gifts and active
// chains and fans every gift event out to all connected websocket clients.
// Newly connected clients receive one GIFT_STATE_UPDATE snapshot instead of
// an event replay.
//
// The projection lives in memory and belongs to a single process. Delivery is
// best effort: a client whose send queue is full misses the message.
package realtime

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	RecentLimit    int
	MaxChains      int
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.RecentLimit <= 0 {
		o.RecentLimit = 10
	}
	if o.MaxChains <= 0 {
		o.MaxChains = 50
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	return o
}

// Client is one connected display.
type Client struct {
	ID   string
	Send chan []byte
}

// Status is the operational view of a Hub.
type Status struct {
	Clients      int `json:"clients"`
	ActiveChains int `json:"active_chains"`
	RecentGifts  int `json:"recent_gifts"`
}

// Hub owns the display projection and the set of connected clients.
type Hub struct {
	opts Options
	log  zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	recent  []GiftProjection
	chains  [][]GiftProjection
}

// NewHub returns an empty hub.
func NewHub(opts Options, log zerolog.Logger) *Hub {
	return &Hub{
		opts:    opts.withDefaults(),
		log:     log,
		clients: make(map[*Client]struct{}),
		recent:  []GiftProjection{},
		chains:  [][]GiftProjection{},
	}
}

// NewClient allocates a client with the configured send buffer.
func (h *Hub) NewClient() *Client {
	return &Client{ID: uuid.NewString(), Send: make(chan []byte, h.opts.SendBuffer)}
}

// Register adds c and queues the current snapshot to c only.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	hubClients.Set(float64(len(h.clients)))

	data, err := encodeFrame(TypeStateUpdate, h.snapshotLocked())
	if err != nil {
		h.log.Error().Err(err).Msg("encode snapshot")
		return
	}
	h.sendLocked(c, data)
}

// Unregister removes c and closes its send queue. It is safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
	hubClients.Set(float64(len(h.clients)))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
	hubClients.Set(0)
}

// Snapshot returns a copy of the current projection.
func (h *Hub) Snapshot() StateSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

// Status reports client, chain and recent-gift counts.
func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Status{Clients: len(h.clients), ActiveChains: len(h.chains), RecentGifts: len(h.recent)}
}

// Publish applies env to the projection and broadcasts it to every client.
// It returns false when env was ignored.
func (h *Hub) Publish(env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(env.Type)).Msg("encode envelope")
		return false
	}
	return h.dispatch(env, data)
}

// HandleClientMessage applies a message received from a display and
// rebroadcasts the original bytes to every client, the sender included.
// Undecodable messages and unknown types are dropped.
func (h *Hub) HandleClientMessage(data []byte) bool {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Debug().Err(err).Msg("ignoring malformed display message")
		return false
	}
	return h.dispatch(env, data)
}

func (h *Hub) dispatch(env Envelope, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.applyLocked(env); err != nil {
		h.log.Debug().Err(err).Str("type", string(env.Type)).Msg("ignoring display message")
		return false
	}
	hubEvents.WithLabelValues(string(env.Type)).Inc()
	for c := range h.clients {
		h.sendLocked(c, data)
	}
	return true
}

// sendLocked queues data without blocking; a full queue drops the message.
func (h *Hub) sendLocked(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		hubDropped.Inc()
		h.log.Warn().Str("client_id", c.ID).Msg("display send queue full, dropping message")
	}
}

// GiftCreated publishes GIFT_UNIT_CREATED for g.
func (h *Hub) GiftCreated(g domain.GiftUnit) {
	h.publish(TypeGiftCreated, Project(g))
}

// GiftClaimed publishes GIFT_UNIT_CLAIMED.
func (h *Hub) GiftClaimed(giftID string, claimedAt time.Time) {
	h.publish(TypeGiftClaimed, ClaimedPayload{GiftUnitID: giftID, ClaimedAt: claimedAt})
}

// ChainContinued publishes GIFT_CHAIN_CONTINUED for parentID and child.
func (h *Hub) ChainContinued(parentID string, continuedAt time.Time, child domain.GiftUnit) {
	h.publish(TypeChainContinued, ContinuedPayload{
		GiftUnitID:  parentID,
		ContinuedAt: continuedAt,
		NewGiftUnit: Project(child),
	})
}

// Replace publishes a GIFT_STATE_UPDATE carrying s.
func (h *Hub) Replace(s StateSnapshot) {
	h.publish(TypeStateUpdate, s)
}

func (h *Hub) publish(t MessageType, payload any) {
	env, err := newEnvelope(t, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(t)).Msg("encode payload")
		return
	}
	h.Publish(env)
}

// Seed rebuilds the projection from stored gifts without broadcasting. Gifts
// are applied oldest first so chains assemble in order.
func (h *Hub) Seed(gifts []domain.GiftUnit) {
	sorted := append([]domain.GiftUnit(nil), gifts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ChainPosition < b.ChainPosition
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = []GiftProjection{}
	h.chains = [][]GiftProjection{}
	for _, g := range sorted {
		h.placeLocked(Project(g))
	}
}
