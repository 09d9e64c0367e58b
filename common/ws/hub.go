package ws

import (
	"sync"
)

// DefaultClientBuffer is the per-subscriber channel size used by Subscribe.
const DefaultClientBuffer = 16

// Hub fans inventory events out to subscribers. It has no knowledge of
// net/http; the server bridges each websocket connection to a subscription.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]chan Message
	register   chan registration
	unregister chan unregistration
	broadcast  chan Message
	shutdown   chan struct{}
	stopOnce   sync.Once

	// OnDrop, when set, is called for every message skipped because a
	// subscriber's buffer was full.
	OnDrop func(clientID string, msg Message)
}

type registration struct {
	id   string
	ch   chan Message
	done chan struct{}
}

type unregistration struct {
	id   string
	done chan struct{}
}

// NewHub creates and starts a new Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]chan Message),
		register:   make(chan registration),
		unregister: make(chan unregistration),
		broadcast:  make(chan Message, 256),
		shutdown:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[reg.id]; ok {
				close(old)
			}
			h.clients[reg.id] = reg.ch
			h.mu.Unlock()
			close(reg.done)
		case un := <-h.unregister:
			h.mu.Lock()
			if ch, ok := h.clients[un.id]; ok {
				close(ch)
				delete(h.clients, un.id)
			}
			h.mu.Unlock()
			close(un.done)
		case msg := <-h.broadcast:
			h.mu.RLock()
			for id, ch := range h.clients {
				select {
				case ch <- msg:
				default:
					if h.OnDrop != nil {
						h.OnDrop(id, msg)
					}
				}
			}
			h.mu.RUnlock()
		case <-h.shutdown:
			h.mu.Lock()
			for id, ch := range h.clients {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Subscribe registers a new subscriber and returns its receive channel.
// The channel is closed on Unsubscribe or Stop. Re-using an id replaces
// (and closes) the previous subscription.
func (h *Hub) Subscribe(id string) <-chan Message {
	ch := make(chan Message, DefaultClientBuffer)
	done := make(chan struct{})
	select {
	case h.register <- registration{id: id, ch: ch, done: done}:
		<-done
	case <-h.shutdown:
		close(ch)
	}
	return ch
}

// Unsubscribe removes the subscriber with the given id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	done := make(chan struct{})
	select {
	case h.unregister <- unregistration{id: id, done: done}:
		<-done
	case <-h.shutdown:
	}
}

// Publish queues msg for all subscribers. It never blocks: if the hub
// queue is full the message is dropped and false is returned.
func (h *Hub) Publish(msg Message) bool {
	select {
	case <-h.shutdown:
		return false
	default:
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of active subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts down the hub and closes all subscriber channels. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.shutdown) })
}
