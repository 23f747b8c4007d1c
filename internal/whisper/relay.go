package whisper

import (
	"log/slog"

	"github.com/nupi-ai/whisper-runtime/internal/native"
)

// relay forwards segments produced inside a native call to Go listeners. The
// native side extracts and sends; a goroutine owned by the relay delivers. The
// relay is Idle before startRelay, Active until finish returns, and never reused.
type relay struct {
	log       *slog.Logger
	listeners []func(Segment)
	ch        chan Segment
	done      chan struct{}
	emitted   int
}

func (m *Model) startRelay(handler func(Segment)) *relay {
	listeners := m.subscribers()
	if handler != nil {
		listeners = append(listeners, handler)
	}
	r := &relay{log: m.log, listeners: listeners}
	if len(listeners) == 0 {
		return r
	}
	r.ch = make(chan Segment, m.relayBuffer)
	r.done = make(chan struct{})
	go r.run()
	return r
}

// callback returns the function handed to native.Context.Full, or nil when
// nobody is listening. It runs on the goroutine executing the native call and
// emits segments [total-nNew, total).
func (r *relay) callback(nctx native.Context, p Params) func(nNew int) {
	if r.ch == nil {
		return nil
	}
	return func(nNew int) {
		total := nctx.NSegments()
		first := max(total-nNew, r.emitted, 0)
		for i := first; i < total; i++ {
			r.ch <- extractSegment(nctx, i, p)
		}
		r.emitted = max(r.emitted, total)
	}
}

func (r *relay) run() {
	defer close(r.done)
	for seg := range r.ch {
		for _, fn := range r.listeners {
			r.deliver(fn, seg)
		}
	}
}

func (r *relay) deliver(fn func(Segment), seg Segment) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("segment listener panicked", "panic", rec, "index", seg.Index)
		}
	}()
	fn(seg)
}

// finish waits until every emitted segment has been delivered.
func (r *relay) finish() {
	if r.ch == nil {
		return
	}
	close(r.ch)
	<-r.done
}
