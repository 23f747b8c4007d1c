// Command whisperctl transcribes WAV files with a local model or a running whisperd.
//
// Usage:
//
//	whisperctl [flags] <command> [args]
//
// Commands:
//
//	transcribe  - Transcribe a WAV file
//	info        - Describe the local build or a remote daemon
package main

import (
	"fmt"
	"os"

	"github.com/nupi-ai/whisper-runtime/cmd/whisperctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
