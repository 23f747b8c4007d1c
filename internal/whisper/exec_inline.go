//go:build js || wasip1

package whisper

// Without threads the native call runs on the caller and InferAsync hands back
// a resolved Future.
func defaultExecutor() executor { return inlineExecutor{} }
