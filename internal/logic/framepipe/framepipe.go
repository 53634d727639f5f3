// Package framepipe hands the newest camera frame to the screen.
//
// The pipe holds a single slot. Deliver overwrites it unconditionally, so a
// frame that is superseded before it is rendered is never rendered. The
// producer is never blocked and never told about dropped frames.
package framepipe

import (
	"context"
	"sync"
	"time"

	"github.com/cjeanneret/CamDeck/internal/camera"
	"github.com/cjeanneret/CamDeck/internal/debug"
)

// Held is a frame in the slot together with its delivery sequence number.
type Held struct {
	Seq   uint64
	Frame camera.Frame
}

// Stats are diagnostics only; nothing in the pipe acts on them. Rendered and
// Superseded count frames consumed through Render or Next, which is what the
// console and the websocket viewers do. Latest reads are not counted.
type Stats struct {
	Delivered  uint64    `json:"delivered"`
	Rendered   uint64    `json:"rendered"`
	Superseded uint64    `json:"superseded"`
	LastSeq    uint64    `json:"last_seq"`
	LastAt     time.Time `json:"last_at"`
}

// Pipe is the single-slot mailbox between the controller and the renderers.
type Pipe struct {
	mu       sync.Mutex
	cond     *sync.Cond
	current  Held
	has      bool
	rendered bool // current has been taken by Render/Next
	closed   bool
	stats    Stats
}

// New creates an empty pipe.
func New() *Pipe {
	p := &Pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Deliver replaces the held frame.
func (p *Pipe) Deliver(f camera.Frame) uint64 {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	if p.has && !p.rendered {
		p.stats.Superseded++
	}
	p.stats.Delivered++
	seq := p.stats.Delivered
	if f.Received.IsZero() {
		f.Received = time.Now()
	}
	p.current = Held{Seq: seq, Frame: f}
	p.has = true
	p.rendered = false
	p.stats.LastSeq = seq
	p.stats.LastAt = f.Received
	p.cond.Broadcast()
	p.mu.Unlock()

	debug.Frame(seq, f.Ref, len(f.Data))
	return seq
}

// Render takes the held frame if it has not been rendered yet.
func (p *Pipe) Render() (Held, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has || p.rendered {
		return Held{}, false
	}
	return p.take(), true
}

func (p *Pipe) take() Held {
	p.rendered = true
	p.stats.Rendered++
	return p.current
}

// Latest returns the most recent frame received so far, rendered or not.
func (p *Pipe) Latest() (Held, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.has
}

// Next blocks until a frame newer than after is held, then returns it.
// Passing the Seq of the last frame a viewer showed gives that viewer its own
// latest-wins cadence. It returns false when ctx is done or the pipe is closed.
func (p *Pipe) Next(ctx context.Context, after uint64) (Held, bool) {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && ctx.Err() == nil && (!p.has || p.current.Seq <= after) {
		p.cond.Wait()
	}
	if p.closed || ctx.Err() != nil {
		return Held{}, false
	}
	if !p.rendered {
		return p.take(), true
	}
	return p.current, true
}

// Stats returns a copy of the pipe counters.
func (p *Pipe) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close wakes every waiting Next and makes Deliver a no-op.
func (p *Pipe) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}
