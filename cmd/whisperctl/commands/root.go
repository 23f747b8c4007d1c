// Package commands implements the whisperctl subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/whisper-runtime/internal/buildinfo"
	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/logging"
	"github.com/nupi-ai/whisper-runtime/internal/server"
)

var (
	addr     string
	logLevel string
	verbose  bool
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "whisperctl",
	Short: "Speech-to-text with whisper.cpp",
	Long: `whisperctl transcribes audio with whisper.cpp.

Without --addr the model is loaded in-process using the same WHISPER_*
environment variables as whisperd. With --addr the request is sent to a
running whisperd over gRPC.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       buildinfo.Info.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "whisperd address (host:port); empty runs locally")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for local runs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print progress to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline")

	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(infoCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newLogger(stderr io.Writer) *slog.Logger {
	logger, _ := logging.New(logging.Options{Level: logLevel, Stdout: stderr})
	return logger
}

func printVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Loader{}.Load()
	if err != nil {
		return config.Config{}, err
	}
	cfg.LogLevel = logLevel
	return cfg, nil
}

func dialRemote() (*server.Client, func() error, error) {
	conn, err := server.Dial(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return server.NewClient(conn), conn.Close, nil
}
