// Package audio converts caller audio into the mono 16 kHz float32 layout whisper.cpp expects.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// TargetRate is the sample rate whisper.cpp models are trained on.
const TargetRate = 16000

// ErrInvalidFormat reports a non-positive sample rate or channel count.
var ErrInvalidFormat = errors.New("audio: invalid format")

// Normalize downmixes interleaved samples to mono by averaging the channels of each
// frame and resamples them to TargetRate with linear interpolation. The result has
// round(frames*TargetRate/sourceRate) samples, where frames = len(samples)/channels
// and a trailing partial frame is dropped. The input is never modified or aliased.
func Normalize(samples []float32, sourceRate, channels int) ([]float32, error) {
	if err := checkFormat(sourceRate, channels); err != nil {
		return nil, err
	}
	mono := Downmix(samples, channels)
	if sourceRate == TargetRate {
		return mono, nil
	}
	return resampleLinear(mono, sourceRate, OutputLength(len(mono), sourceRate)), nil
}

// OutputLength returns the number of 16 kHz samples produced from frames at sourceRate.
func OutputLength(frames, sourceRate int) int {
	if frames <= 0 || sourceRate <= 0 {
		return 0
	}
	return int(math.Round(float64(frames) * TargetRate / float64(sourceRate)))
}

// Downmix averages interleaved channels into a new mono slice.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	scale := 1 / float32(channels)
	for f := 0; f < frames; f++ {
		var sum float32
		for _, v := range samples[f*channels : (f+1)*channels] {
			sum += v
		}
		out[f] = sum * scale
	}
	return out
}

func resampleLinear(mono []float32, sourceRate, outLen int) []float32 {
	out := make([]float32, outLen)
	if len(mono) == 0 {
		return out
	}
	step := float64(sourceRate) / TargetRate
	last := len(mono) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = mono[last]
			continue
		}
		t := float32(pos - float64(j))
		out[i] = (1-t)*mono[j] + t*mono[j+1]
	}
	return out
}

func checkFormat(sourceRate, channels int) error {
	if sourceRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, sourceRate)
	}
	if channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidFormat, channels)
	}
	return nil
}
