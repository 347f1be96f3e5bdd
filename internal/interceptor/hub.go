package interceptor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/galamseywatch/fieldkit/internal/model"
)

// Hub fans messages out to every attached foreground context. The interceptor
// never writes the foreground store itself; queued-write capture travels over
// this channel instead.
type Hub struct {
	mu       sync.Mutex
	contexts map[string]chan model.Message
}

func NewHub() *Hub {
	return &Hub{contexts: map[string]chan model.Message{}}
}

// Attach registers a foreground context and returns its message channel.
func (h *Hub) Attach() (string, <-chan model.Message) {
	id := uuid.NewString()
	ch := make(chan model.Message, 32)
	h.mu.Lock()
	h.contexts[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Detach(id string) {
	h.mu.Lock()
	if ch, ok := h.contexts[id]; ok {
		delete(h.contexts, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast delivers to all attached contexts without blocking; a context
// that cannot keep up misses the message rather than stalling capture.
func (h *Hub) Broadcast(msg model.Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, ch := range h.contexts {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Attached() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.contexts)
}
