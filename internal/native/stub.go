package native

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// stubLanguages follows the head of whisper.cpp's language table so ids line up.
var stubLanguages = []string{
	"en", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr",
	"pl", "ca", "nl", "ar", "sv", "it", "id", "hi", "fi", "vi",
}

const (
	stubEOT            = 50257
	stubWordTokenBase  = 1000
	defaultStubSegment = 2 * 16000
	stubTicksPerSecond = 100
	stubSamplesPerTick = 16000 / stubTicksPerSecond
)

// Stub produces deterministic transcripts without invoking whisper.cpp. It backs
// development builds and tests that exercise the pipeline around the native call.
type Stub struct {
	// SegmentSamples is the number of 16 kHz samples per emitted segment.
	SegmentSamples int
	// Multilingual controls IsMultilingual on contexts created from a buffer.
	// Contexts created from a file are multilingual unless the file name ends in ".en.bin".
	Multilingual bool
}

// NewStub returns a Stub with two-second segments.
func NewStub() *Stub {
	return &Stub{SegmentSamples: defaultStubSegment, Multilingual: true}
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) InitFromFile(path string) (Context, error) {
	if path == "" {
		return nil, errors.New("native: model path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInitFailed, path)
	}
	return s.newContext(!strings.HasSuffix(path, ".en.bin")), nil
}

func (s *Stub) InitFromBuffer(buf []byte) (Context, error) {
	if len(buf) == 0 {
		return nil, errors.New("native: model buffer is empty")
	}
	return s.newContext(s.Multilingual), nil
}

func (s *Stub) newContext(multilingual bool) *stubContext {
	seg := s.SegmentSamples
	if seg <= 0 {
		seg = defaultStubSegment
	}
	return &stubContext{segmentSamples: seg, multilingual: multilingual, langID: -1}
}

type stubSegment struct {
	text   string
	t0, t1 int64
	words  []string
}

type stubContext struct {
	segmentSamples int
	multilingual   bool

	segments []stubSegment
	langID   int
	freed    bool
}

func (c *stubContext) Full(p Params, samples []float32, onNewSegment func(nNew int)) int {
	if c.freed {
		return -1
	}
	c.segments = c.segments[:0]
	c.langID = -1
	if len(samples) == 0 {
		return -1
	}

	lang := p.Language
	if lang == "" || lang == "auto" || !c.multilingual {
		lang = "en"
	}
	id := langIndex(lang)
	if id < 0 {
		return -2
	}
	c.langID = id

	step := c.segmentSamples
	if p.SingleSegment {
		step = len(samples)
	}
	verb := "heard"
	if p.Translate {
		verb = "translated"
	}
	for start, i := 0, 0; start < len(samples); start, i = start+step, i+1 {
		end := min(start+step, len(samples))
		text := fmt.Sprintf(" [stub:%s] %s segment %d", lang, verb, i)
		c.segments = append(c.segments, stubSegment{
			text:  text,
			t0:    int64(start / stubSamplesPerTick),
			t1:    int64(end / stubSamplesPerTick),
			words: strings.Fields(text),
		})
		if onNewSegment != nil {
			onNewSegment(1)
		}
	}
	return 0
}

func (c *stubContext) NSegments() int { return len(c.segments) }

func (c *stubContext) SegmentText(i int) string { return c.segments[i].text }

func (c *stubContext) SegmentT0(i int) int64 { return c.segments[i].t0 }

func (c *stubContext) SegmentT1(i int) int64 { return c.segments[i].t1 }

// NTokens counts one token per word plus a trailing end-of-text token.
func (c *stubContext) NTokens(i int) int { return len(c.segments[i].words) + 1 }

func (c *stubContext) TokenText(i, j int) string {
	words := c.segments[i].words
	if j == len(words) {
		return "[_EOT_]"
	}
	return " " + words[j]
}

func (c *stubContext) TokenData(i, j int) TokenData {
	seg := c.segments[i]
	n := int64(len(seg.words))
	if j == len(seg.words) {
		return TokenData{ID: stubEOT, P: 1, T0: seg.t1, T1: seg.t1}
	}
	span := seg.t1 - seg.t0
	return TokenData{
		ID:   stubWordTokenBase + j,
		P:    0.9,
		PLog: -0.105,
		T0:   seg.t0 + span*int64(j)/n,
		T1:   seg.t0 + span*int64(j+1)/n,
	}
}

func (c *stubContext) TokenEOT() int { return stubEOT }

func (c *stubContext) FullLangID() int { return c.langID }

func (c *stubContext) LangStr(id int) string {
	if id < 0 || id >= len(stubLanguages) {
		return ""
	}
	return stubLanguages[id]
}

func (c *stubContext) LangMaxID() int { return len(stubLanguages) - 1 }

func (c *stubContext) IsMultilingual() bool { return c.multilingual }

func (c *stubContext) Free() {
	c.freed = true
	c.segments = nil
}

func langIndex(lang string) int {
	for i, l := range stubLanguages {
		if l == lang {
			return i
		}
	}
	return -1
}
