//go:build cgo

package native

import (
	"log/slog"
	"runtime/cgo"
	"unsafe"
)

type segmentCallback func(nNew int)

// callbackFromHandle resolves the cgo.Handle stored behind userData. A zero,
// deleted or foreign handle yields ok == false; Handle.Value panics on those.
func callbackFromHandle(userData unsafe.Pointer) (fn segmentCallback, ok bool) {
	if userData == nil {
		return nil, false
	}
	h := *(*cgo.Handle)(userData)
	if h == 0 {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			fn, ok = nil, false
		}
	}()
	fn, ok = h.Value().(segmentCallback)
	return fn, ok && fn != nil
}

// relayNewSegment runs on the thread executing whisper_full. A panic in the Go
// callback must not unwind through C frames.
func relayNewSegment(userData unsafe.Pointer, nNew int) (delivered bool) {
	fn, ok := callbackFromHandle(userData)
	if !ok {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("native new-segment callback panicked", "panic", r, "n_new", nNew)
			delivered = false
		}
	}()
	fn(nNew)
	return true
}
