package whisper

import (
	"fmt"
	"strings"
	"time"
)

// Segment is one decoded span of audio.
type Segment struct {
	Index int           `json:"index" yaml:"index" msgpack:"index"`
	Text  string        `json:"text" yaml:"text" msgpack:"text"`
	Start time.Duration `json:"start" yaml:"start" msgpack:"start"`
	End   time.Duration `json:"end" yaml:"end" msgpack:"end"`
	// Tokens is nil when token output was not requested and empty when it was
	// requested but the segment produced none.
	Tokens []Token `json:"tokens,omitempty" yaml:"tokens,omitempty" msgpack:"tokens,omitempty"`
}

// Token is one decoder token.
type Token struct {
	ID   int     `json:"id" yaml:"id" msgpack:"id"`
	Text string  `json:"text" yaml:"text" msgpack:"text"`
	P    float32 `json:"p" yaml:"p" msgpack:"p"`
	PLog float32 `json:"plog" yaml:"plog" msgpack:"plog"`
	// Special marks control tokens (id >= end-of-text).
	Special bool `json:"special" yaml:"special" msgpack:"special"`
	// Timestamped reports whether Start and End were produced.
	Timestamped bool          `json:"timestamped" yaml:"timestamped" msgpack:"timestamped"`
	Start       time.Duration `json:"start,omitempty" yaml:"start,omitempty" msgpack:"start,omitempty"`
	End         time.Duration `json:"end,omitempty" yaml:"end,omitempty" msgpack:"end,omitempty"`
}

// Result is the outcome of a successful inference.
type Result struct {
	Segments   []Segment `json:"segments" yaml:"segments" msgpack:"segments"`
	LanguageID int       `json:"language_id" yaml:"language_id" msgpack:"language_id"`
	Language   string    `json:"language" yaml:"language" msgpack:"language"`
}

// Text concatenates the segment texts.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range r.Segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// TimestampString formats the segment span as "[hh:mm:ss.mmm --> hh:mm:ss.mmm]".
func (s Segment) TimestampString() string {
	return fmt.Sprintf("[%s --> %s]", FormatTimestamp(s.Start), FormatTimestamp(s.End))
}

// FormatTimestamp renders d as hh:mm:ss.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ticksToDuration converts whisper.cpp's 10 ms ticks.
func ticksToDuration(t int64) time.Duration {
	return time.Duration(t) * 10 * time.Millisecond
}
