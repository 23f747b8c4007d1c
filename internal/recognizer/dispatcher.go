package recognizer

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

// dispatcher runs every subscriber callback on one goroutine so subscribers
// never observe concurrent calls.
type dispatcher struct {
	log *slog.Logger

	subMu  sync.RWMutex
	subs   map[uint64]func(whisper.Segment)
	nextID uint64

	// closeMu guards closed and is held while sending on queue.
	closeMu sync.RWMutex
	closed  bool
	queue   chan func()
	stopped chan struct{}
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		log:     logger,
		subs:    make(map[uint64]func(whisper.Segment)),
		queue:   make(chan func(), 64),
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for fn := range d.queue {
		fn()
	}
}

func (d *dispatcher) subscribe(fn func(whisper.Segment)) func() {
	if fn == nil {
		return func() {}
	}
	d.subMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	d.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, id)
			d.subMu.Unlock()
		})
	}
}

// post queues fn unless the dispatcher is closed.
func (d *dispatcher) post(fn func()) bool {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return false
	}
	d.queue <- fn
	return true
}

// segment is registered as the model subscriber.
func (d *dispatcher) segment(seg whisper.Segment) {
	d.post(func() {
		d.subMu.RLock()
		ids := slices.Sorted(maps.Keys(d.subs))
		subs := make([]func(whisper.Segment), 0, len(ids))
		for _, id := range ids {
			subs = append(subs, d.subs[id])
		}
		d.subMu.RUnlock()
		for _, fn := range subs {
			d.call(fn, seg)
		}
	})
}

func (d *dispatcher) call(fn func(whisper.Segment), seg whisper.Segment) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("segment subscriber panicked", "panic", rec, "index", seg.Index)
		}
	}()
	fn(seg)
}

// flush returns once everything queued before it has run.
func (d *dispatcher) flush() {
	done := make(chan struct{})
	if !d.post(func() { close(done) }) {
		return
	}
	<-done
}

func (d *dispatcher) close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.closeMu.Unlock()
	<-d.stopped
}
