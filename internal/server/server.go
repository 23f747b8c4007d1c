// Package server exposes a Recognizer over gRPC as the whisper.v1.Transcriber service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/whisper-runtime/internal/audio"
	"github.com/nupi-ai/whisper-runtime/internal/buildinfo"
	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/recognizer"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

// Recognizer is the part of *recognizer.Recognizer the service uses.
type Recognizer interface {
	Backend() string
	ModelPath() string
	IsLoaded() bool
	IsMultilingual() (bool, error)
	Languages() ([]string, error)
	Transcribe(ctx context.Context, samples []float32, sampleRate, channels int, opts ...recognizer.TranscribeOption) *whisper.Future
}

// Server implements TranscriberServer.
type Server struct {
	cfg     config.Config
	log     *slog.Logger
	rec     Recognizer
	metrics *telemetry.Recorder
}

var _ TranscriberServer = (*Server)(nil)

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, rec Recognizer, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		panic("server: recognizer must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"model_variant", cfg.ModelVariant,
			"language", cfg.Language,
		),
		rec:     rec,
		metrics: metrics,
	}
}

// Info reports build details, model state and cumulative telemetry.
func (s *Server) Info(ctx context.Context, _ *InfoRequest) (*InfoResponse, error) {
	resp := &InfoResponse{
		Name:         buildinfo.Info.Name,
		Version:      buildinfo.Info.Version,
		Backend:      s.rec.Backend(),
		ModelVariant: s.cfg.ModelVariant,
		ModelPath:    s.rec.ModelPath(),
		Loaded:       s.rec.IsLoaded(),
		Language:     s.cfg.Language,
	}
	if resp.Loaded {
		if ml, err := s.rec.IsMultilingual(); err == nil {
			resp.Multilingual = ml
		}
		if langs, err := s.rec.Languages(); err == nil {
			resp.Languages = langs
		}
	}
	snap := s.metrics.Snapshot()
	resp.Stats = Telemetry{
		TotalInferences:  snap.TotalInferences,
		ActiveInferences: snap.ActiveInferences,
		FailedInferences: snap.FailedInferences,
		TotalSegments:    snap.TotalSegments,
		AudioSeconds:     snap.AudioSeconds(),
		TotalModelLoads:  snap.TotalModelLoads,
		FailedModelLoads: snap.FailedModelLoads,
		LockWait:         snap.LockWait,
		NativeTime:       snap.NativeTime,
	}
	return resp, nil
}

// Transcribe runs one clip through the recognizer and streams each segment as
// whisper.cpp produces it, followed by a final message carrying the full result.
func (s *Server) Transcribe(req *TranscribeRequest, stream TranscribeStream) error {
	ctx := stream.Context()
	if err := validateRequest(req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	channels := req.Channels
	if channels == 0 {
		channels = 1
	}
	language := resolveLanguage(s.cfg.Language, req.Language)
	metadata := buildinfo.TranscriptMetadata(s.cfg.ModelVariant, language, s.rec.Backend())
	for k, v := range req.Metadata {
		if _, reserved := metadata[k]; !reserved {
			metadata[k] = v
		}
	}
	log := s.log.With("request_id", requestID)
	log.Info("transcription requested",
		"bytes", len(req.Audio),
		"sample_rate", req.SampleRate,
		"channels", channels,
		"resolved_language", language,
	)

	segments := make(chan whisper.Segment, 16)
	onSegment := func(seg whisper.Segment) {
		select {
		case segments <- seg:
		case <-ctx.Done():
		}
	}
	fut := s.rec.Transcribe(ctx, audio.PCM16ToFloat32(req.Audio), req.SampleRate, channels,
		recognizer.WithRequestID(requestID),
		recognizer.WithMetadata(req.Metadata),
		recognizer.WithSegmentHandler(onSegment),
		recognizer.WithParams(func(p *whisper.Params) {
			p.Language = language
			if req.Translate != nil {
				p.Translate = *req.Translate
			}
			if req.Prompt != "" {
				p.InitialPrompt = req.Prompt
			}
			if req.Tokens != nil {
				p.EnableTokens = *req.Tokens
			}
		}),
	)

	send := func(seg whisper.Segment) error {
		return stream.Send(&TranscribeResponse{RequestID: requestID, Segment: &seg})
	}
wait:
	for {
		select {
		case seg := <-segments:
			if err := send(seg); err != nil {
				log.Error("failed to send segment", "error", err)
				return err
			}
		case <-fut.Done():
			break wait
		case <-ctx.Done():
			log.Warn("client went away before transcription finished", "error", ctx.Err())
			return status.FromContextError(ctx.Err()).Err()
		}
	}
	// Segment handlers complete before the future resolves, so anything not yet
	// sent is already buffered.
	for drained := false; !drained; {
		select {
		case seg := <-segments:
			if err := send(seg); err != nil {
				return err
			}
		default:
			drained = true
		}
	}

	res, err := fut.Wait(ctx)
	if err != nil {
		log.Error("transcription failed", "error", err)
		return toStatus(err)
	}
	log.Info("transcription finished", "segments", len(res.Segments), "detected_language", res.Language)
	return stream.Send(&TranscribeResponse{
		RequestID: requestID,
		Final:     true,
		Result:    res,
		Text:      strings.TrimSpace(res.Text()),
		Metadata:  metadata,
	})
}

func validateRequest(req *TranscribeRequest) error {
	switch {
	case req == nil:
		return errors.New("request required")
	case req.SampleRate <= 0:
		return errors.New("sample_rate must be positive")
	case req.Channels < 0:
		return errors.New("channels must not be negative")
	case len(req.Audio)%2 != 0:
		return errors.New("audio must hold whole 16-bit samples")
	}
	return nil
}

// resolveLanguage picks the decode language. A server configured with
// config.LanguageClient defers to the request and falls back to auto-detection.
func resolveLanguage(configured, requested string) string {
	if configured != config.LanguageClient {
		return configured
	}
	return whisper.NormaliseLanguage(requested)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, whisper.ErrInvalidParams), errors.Is(err, audio.ErrInvalidFormat):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, whisper.ErrNotLoaded):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, whisper.ErrNativeInference):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
