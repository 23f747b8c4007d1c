package audio

import (
	"fmt"
	"log/slog"
	"strings"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Quality selects the resampling kernel.
type Quality int

const (
	// QualityLinear uses Normalize's linear interpolation.
	QualityLinear Quality = iota
	// QualityHigh uses a windowed-sinc resampler. Output length matches QualityLinear.
	QualityHigh
)

// ParseQuality maps a config string to a Quality. Empty selects QualityLinear.
func ParseQuality(value string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "linear":
		return QualityLinear, nil
	case "high", "sinc":
		return QualityHigh, nil
	default:
		return QualityLinear, fmt.Errorf("audio: unknown resample quality %q", value)
	}
}

func (q Quality) String() string {
	if q == QualityHigh {
		return "high"
	}
	return "linear"
}

// Preprocessor normalises audio with a configurable resampling kernel.
type Preprocessor struct {
	Quality Quality
	Logger  *slog.Logger
}

// Process returns mono TargetRate samples. It follows the same length contract as Normalize.
func (p Preprocessor) Process(samples []float32, sourceRate, channels int) ([]float32, error) {
	if p.Quality != QualityHigh || sourceRate == TargetRate {
		return Normalize(samples, sourceRate, channels)
	}
	if err := checkFormat(sourceRate, channels); err != nil {
		return nil, err
	}
	mono := Downmix(samples, channels)
	outLen := OutputLength(len(mono), sourceRate)
	if len(mono) == 0 {
		return []float32{}, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(sourceRate),
		OutputRate: TargetRate,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	input := make([]float64, len(mono))
	for i, v := range mono {
		input[i] = float64(v)
	}
	output, err := rs.Process(input)
	if err == nil {
		var tail []float64
		tail, err = rs.Flush()
		output = append(output, tail...)
	}
	if err != nil || len(output) == 0 {
		p.logger().Warn("sinc resampler failed, falling back to linear", "error", err, "source_rate", sourceRate)
		return resampleLinear(mono, sourceRate, outLen), nil
	}

	// Fit to the linear path's length. Rounding can leave the flushed output a few
	// samples short; those repeat the last sample.
	out := make([]float32, outLen)
	for i := range out {
		out[i] = float32(output[min(i, len(output)-1)])
	}
	return out, nil
}

func (p Preprocessor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
