//go:build !whispercpp

package native

// Available reports whether the whisper.cpp backend is compiled in.
func Available() bool { return false }

// New returns ErrUnavailable when the binary was built without the whispercpp tag.
func New(opts Options) (Library, error) {
	return nil, ErrUnavailable
}
