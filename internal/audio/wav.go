package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV reports a file the WAV decoder could not read.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// Clip is decoded, still interleaved, audio in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Seconds returns the clip duration.
func (c Clip) Seconds() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Clip, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer fh.Close()
	return DecodeWAV(fh)
}

// DecodeWAV decodes an integer PCM WAV stream of any rate and channel count.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if buf == nil || buf.Format == nil {
		return Clip{}, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}
	clip := Clip{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}
	if err := checkFormat(clip.SampleRate, clip.Channels); err != nil {
		return Clip{}, err
	}
	clip.Samples = intBufferToFloat32(buf)
	return clip, nil
}

func intBufferToFloat32(buf *goaudio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	out := make([]float32, len(buf.Data))
	// 8-bit WAV is unsigned.
	if depth == 8 {
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := float32(int64(1) << (depth - 1))
	for i, v := range buf.Data {
		f := float32(v) / scale
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = f
	}
	return out
}

// EncodeWAV writes the clip as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, clip Clip) error {
	if err := checkFormat(clip.SampleRate, clip.Channels); err != nil {
		return err
	}
	enc := wav.NewEncoder(w, clip.SampleRate, 16, clip.Channels, 1)
	data := make([]int, len(clip.Samples))
	for i, v := range clip.Samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * 32767)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Channels, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
