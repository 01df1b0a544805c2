package automation

import "sync"

// Hub fans out freshly appended results to live subscribers (the websocket
// stream endpoint). Slow subscribers are skipped, never blocked on.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Result]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Result]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the channel.
func (h *Hub) Subscribe() (<-chan Result, func()) {
	ch := make(chan Result, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (h *Hub) Publish(r Result) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}
