package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event is a message sent by a renderer, for example
// {"type":"click","anchor":"..."}.
type Event struct {
	Type   string `json:"type"`
	Anchor string `json:"anchor,omitempty"`
}

// Listener is told about renderers joining a view and the events they send.
//
// Joined runs before the client receives any broadcast. attach starts
// delivery; a listener that queues an initial message calls attach under the
// same lock it broadcasts with, so nothing is delivered twice or lost in
// between. Register attaches the client itself if Joined did not.
type Listener interface {
	Joined(viewID string, client *Client, attach func())
	Received(viewID string, ev Event)
}

type Hub struct {
	redis  *redis.Client
	origin string
	cancel context.CancelFunc

	clients  map[string]map[*Client]struct{}
	listener Listener
	mu       sync.RWMutex
}

type Client struct {
	ViewID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		cancel:  cancel,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ready := make(chan struct{})
		go h.subscribeRedis(ctx, ready)
		<-ready
	}
	return h
}

// Close stops the redis subscription.
func (h *Hub) Close() {
	h.cancel()
}

func (h *Hub) SetListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

func (h *Hub) Register(viewID string) *Client {
	client := &Client{
		ViewID: viewID,
		Send:   make(chan []byte, 256),
	}

	h.mu.RLock()
	listener := h.listener
	h.mu.RUnlock()

	var once sync.Once
	attach := func() { once.Do(func() { h.attach(client) }) }
	if listener != nil {
		listener.Joined(viewID, client, attach)
	}
	attach()
	return client
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.ViewID] == nil {
		h.clients[client.ViewID] = map[*Client]struct{}{}
	}
	h.clients[client.ViewID][client] = struct{}{}
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if viewClients, ok := h.clients[client.ViewID]; ok {
		if _, registered := viewClients[client]; !registered {
			return
		}
		delete(viewClients, client)
		if len(viewClients) == 0 {
			delete(h.clients, client.ViewID)
		}
		close(client.Send)
	}
}

// Clients reports how many renderers are connected to viewID here.
func (h *Hub) Clients(viewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[viewID])
}

// Broadcast delivers payload to the local renderers of viewID and publishes
// it for hubs in other processes.
func (h *Hub) Broadcast(viewID string, payload []byte) {
	h.deliver(viewID, payload)

	if h.redis != nil {
		msg := append([]byte(h.origin+"\n"), payload...)
		err := h.redis.Publish(context.Background(), redisChannel(viewID), msg).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// Dispatch hands a renderer event to the listener.
func (h *Hub) Dispatch(viewID string, raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
		log.Printf("ignoring renderer message on %s: %q", viewID, raw)
		return
	}
	h.mu.RLock()
	listener := h.listener
	h.mu.RUnlock()
	if listener != nil {
		listener.Received(viewID, ev)
	}
}

func (h *Hub) deliver(viewID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[viewID] {
		select {
		case client.Send <- payload:
		default:
			log.Printf("renderer on %s is slow, dropping message", viewID)
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	pubsub := h.redis.PSubscribe(ctx, redisChannel("*"))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			origin, payload, found := bytes.Cut([]byte(msg.Payload), []byte("\n"))
			if !found || string(origin) == h.origin {
				continue
			}
			h.deliver(viewIDFromChannel(msg.Channel), payload)
		}
	}
}

func redisChannel(viewID string) string {
	return "ecomap:" + viewID + ":surface"
}

func viewIDFromChannel(ch string) string {
	// ecomap:{view}:surface
	const prefix = "ecomap:"
	const suffix = ":surface"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
