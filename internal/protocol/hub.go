package protocol

import (
	"sync"

	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

const pushBuffer = 32

// Hub fans pushes out to the streams opened by each client.
// A client may hold several streams (for example a reconnecting SSE
// consumer); each of them receives every push addressed to the client.
//
// Sends never block. When a stream's buffer is full the oldest buffered
// push is evicted and logged at error level, so the newest result for a
// waiting request is always the one a stalled reader still gets.
type Hub struct {
	mu      sync.Mutex
	streams map[string]map[int]chan Push
	nextID  int
}

func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]map[int]chan Push),
	}
}

func (h *Hub) Subscribe(clientID string) (<-chan Push, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Push, pushBuffer)
	if h.streams[clientID] == nil {
		h.streams[clientID] = make(map[int]chan Push)
	}
	h.streams[clientID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			streams := h.streams[clientID]
			if existing, ok := streams[id]; ok {
				close(existing)
				delete(streams, id)
			}
			if len(streams) == 0 {
				delete(h.streams, clientID)
			}
		})
	}
}

// Send delivers push to clientID and reports whether any stream took it.
func (h *Hub) Send(clientID string, push Push) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := false
	for _, ch := range h.streams[clientID] {
		if h.offer(clientID, ch, push) {
			delivered = true
		}
	}
	if !delivered {
		log.Debug("No open stream for client %s, dropping %s push", clientID, push.Kind)
	}
	return delivered
}

func (h *Hub) Broadcast(push Push) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for clientID, streams := range h.streams {
		for _, ch := range streams {
			h.offer(clientID, ch, push)
		}
	}
}

// Clients returns the number of clients with at least one open stream.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// offer must be called with h.mu held; only the hub sends on ch, so one
// eviction always makes room.
func (h *Hub) offer(clientID string, ch chan Push, push Push) bool {
	select {
	case ch <- push:
		return true
	default:
	}

	select {
	case evicted := <-ch:
		log.Error("Push stream for client %s is full, evicted %s push for %q", clientID, evicted.Kind, evicted.OriginalText)
	default:
	}
	select {
	case ch <- push:
		return true
	default:
		log.Error("Push stream for client %s is full, dropping %s push for %q", clientID, push.Kind, push.OriginalText)
		return false
	}
}
