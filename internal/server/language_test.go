package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/whisper-runtime/internal/audio"
	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

func TestResolveLanguage(t *testing.T) {
	cases := []struct {
		configured, requested, want string
	}{
		{"client", "pl", "pl"},
		{"client", "", "auto"},
		{"client", "  PL  ", "pl"},
		{"client", "   ", "auto"},
		{"auto", "pl", "auto"},
		{"de", "pl", "de"},
		{"en", "", "en"},
		{"auto", "", "auto"},
	}
	for _, tc := range cases {
		if got := resolveLanguage(tc.configured, tc.requested); got != tc.want {
			t.Errorf("resolveLanguage(%q, %q): got %q, want %q", tc.configured, tc.requested, got, tc.want)
		}
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("wrapped: %w", whisper.ErrInvalidParams), codes.InvalidArgument},
		{audio.ErrInvalidFormat, codes.InvalidArgument},
		{whisper.ErrClosed, codes.FailedPrecondition},
		{&whisper.NativeError{Code: -6}, codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Unknown},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus(tc.err)); got != tc.want {
			t.Errorf("toStatus(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}
