package camera

import "sync"

// Hub fans controller events out to subscribers. Controllers embed it to
// implement Subscribe.
//
// Frame events are dropped for a subscriber whose buffer is full. Every other
// kind waits for the subscriber until it unsubscribes or the hub closes.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	quitOnce  sync.Once
	closeOnce sync.Once
	quit      chan struct{}
}

type subscriber struct {
	ch       chan Event
	done     chan struct{}
	doneOnce sync.Once
}

func (s *subscriber) release() {
	s.doneOnce.Do(func() { close(s.done) })
}

const hubBuffer = 64

func (h *Hub) quitCh() chan struct{} {
	h.quitOnce.Do(func() { h.quit = make(chan struct{}) })
	return h.quit
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	s := &subscriber{
		ch:   make(chan Event, hubBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs == nil {
		h.subs = make(map[*subscriber]struct{})
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		s.release() // unblocks a Publish waiting on this subscriber
		h.mu.Lock()
		if _, ok := h.subs[s]; ok {
			delete(h.subs, s)
			close(s.ch)
		}
		h.mu.Unlock()
	}
	return s.ch, unsub
}

// Publish sends ev to all subscribers.
func (h *Hub) Publish(ev Event) {
	quit := h.quitCh()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if ev.Kind == FrameDelivered {
			select {
			case s.ch <- ev:
			default:
			}
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-quit:
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel; later subscribers get a closed channel.
func (h *Hub) Close() {
	quit := h.quitCh()
	h.closeOnce.Do(func() { close(quit) })

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}
