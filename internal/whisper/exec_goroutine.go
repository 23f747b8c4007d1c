//go:build !js && !wasip1

package whisper

type goroutineExecutor struct{}

func (goroutineExecutor) Go(fn func()) { go fn() }

func defaultExecutor() executor { return goroutineExecutor{} }
