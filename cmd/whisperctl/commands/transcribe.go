package commands

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/whisper-runtime/internal/audio"
	"github.com/nupi-ai/whisper-runtime/internal/config"
	"github.com/nupi-ai/whisper-runtime/internal/models"
	"github.com/nupi-ai/whisper-runtime/internal/recognizer"
	"github.com/nupi-ai/whisper-runtime/internal/server"
	"github.com/nupi-ai/whisper-runtime/internal/telemetry"
	"github.com/nupi-ai/whisper-runtime/internal/transcript"
	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

var (
	outputFormat string
	stream       bool
	prompt       string
	language     string
	translate    bool
	tokens       bool
	modelPath    string
	useStub      bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe a WAV file",
	Long: `Transcribe a PCM WAV file of any sample rate and channel count.

Audio is downmixed and resampled to 16 kHz mono before decoding.

Examples:
  whisperctl transcribe meeting.wav
  whisperctl transcribe meeting.wav --format timestamps --stream
  whisperctl transcribe meeting.wav --addr 127.0.0.1:50051 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	f := transcribeCmd.Flags()
	f.StringVarP(&outputFormat, "format", "f", string(transcript.FormatText), "output format: text, timestamps, json, yaml or msgpack")
	f.BoolVar(&stream, "stream", false, "print segments to stderr as they are decoded")
	f.StringVar(&prompt, "prompt", "", "initial prompt")
	f.StringVarP(&language, "language", "l", "", "spoken language, or auto")
	f.BoolVar(&translate, "translate", false, "translate to English")
	f.BoolVar(&tokens, "tokens", false, "include per-token output")
	f.StringVar(&modelPath, "model", "", "model file for local runs (.bin or .bin.zst)")
	f.BoolVar(&useStub, "stub", false, "use the stub backend for local runs")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	format, err := transcript.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	clip, err := audio.ReadWAVFile(args[0])
	if err != nil {
		return err
	}
	printVerbose(cmd, "Read %s: %.2fs at %d Hz, %d channel(s)", args[0], clip.Seconds(), clip.SampleRate, clip.Channels)

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var onSegment func(whisper.Segment)
	if stream {
		stderr := cmd.ErrOrStderr()
		onSegment = func(seg whisper.Segment) { _ = transcript.WriteSegment(stderr, seg) }
	}

	var doc transcript.Document
	if addr != "" {
		doc, err = transcribeRemote(ctx, clip, onSegment)
	} else {
		doc, err = transcribeLocal(ctx, cmd.ErrOrStderr(), clip, onSegment)
	}
	if err != nil {
		return err
	}
	doc.Source = args[0]
	return transcript.Write(cmd.OutOrStdout(), format, doc)
}

func transcribeLocal(ctx context.Context, stderr io.Writer, clip audio.Clip, onSegment func(whisper.Segment)) (transcript.Document, error) {
	cfg, err := loadConfig()
	if err != nil {
		return transcript.Document{}, err
	}
	if modelPath != "" {
		cfg.ModelPath = modelPath
	}
	if useStub {
		cfg.UseStubEngine = true
	}
	logger := newLogger(stderr)
	manager, err := models.NewManager(cfg.DataDir, logger)
	if err != nil {
		return transcript.Document{}, err
	}
	rec, err := recognizer.New(recognizer.Options{
		Config:   cfg,
		Manager:  manager,
		Recorder: telemetry.NewRecorder(logger),
		Logger:   logger,
	})
	if err != nil {
		return transcript.Document{}, err
	}
	defer rec.Close()
	if err := rec.Init(ctx); err != nil {
		return transcript.Document{}, err
	}

	opts := []recognizer.TranscribeOption{recognizer.WithParams(applyFlags)}
	if onSegment != nil {
		opts = append(opts, recognizer.WithSegmentHandler(onSegment))
	}
	res, err := rec.Transcribe(ctx, clip.Samples, clip.SampleRate, clip.Channels, opts...).Wait(ctx)
	if err != nil {
		return transcript.Document{}, err
	}
	lang := cfg.Language
	if language != "" {
		lang = whisper.NormaliseLanguage(language)
	}
	doc := transcript.FromResult(res, map[string]string{
		"model_variant": cfg.ModelVariant,
		"language":      lang,
		"backend":       rec.Backend(),
	})
	return doc, nil
}

func applyFlags(p *whisper.Params) {
	if language != "" {
		p.Language = whisper.NormaliseLanguage(language)
		if p.Language == config.LanguageClient {
			p.Language = whisper.AutoLanguage
		}
	}
	if translate {
		p.Translate = true
	}
	if prompt != "" {
		p.InitialPrompt = prompt
	}
	if tokens {
		p.EnableTokens = true
	}
}

func transcribeRemote(ctx context.Context, clip audio.Clip, onSegment func(whisper.Segment)) (transcript.Document, error) {
	client, closeConn, err := dialRemote()
	if err != nil {
		return transcript.Document{}, err
	}
	defer closeConn()

	req := &server.TranscribeRequest{
		Audio:      audio.Float32ToPCM16(clip.Samples),
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
		Language:   strings.TrimSpace(language),
		Prompt:     prompt,
	}
	if translate {
		req.Translate = &translate
	}
	if tokens {
		req.Tokens = &tokens
	}
	resp, err := client.Transcribe(ctx, req, onSegment)
	if err != nil {
		return transcript.Document{}, err
	}
	doc := transcript.FromResult(resp.Result, resp.Metadata)
	doc.RequestID = resp.RequestID
	return doc, nil
}
