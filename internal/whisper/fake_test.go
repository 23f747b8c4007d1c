package whisper

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/whisper-runtime/internal/native"
)

const fakeEOT = 100

type fakeLibrary struct {
	ctx *fakeContext
	err error
}

func (l *fakeLibrary) Name() string { return "fake" }

func (l *fakeLibrary) InitFromFile(string) (native.Context, error) { return l.init() }

func (l *fakeLibrary) InitFromBuffer([]byte) (native.Context, error) { return l.init() }

func (l *fakeLibrary) init() (native.Context, error) {
	if l.err != nil || l.ctx == nil {
		return nil, l.err
	}
	return l.ctx, nil
}

type fakeSegment struct {
	text   string
	t0, t1 int64
	tokens []native.TokenData
	texts  []string
}

// fakeContext scripts native behaviour: script lists the nNew value of every
// callback, and segments become visible as the script advances.
type fakeContext struct {
	segments []fakeSegment
	script   []int
	rc       int
	delay    time.Duration
	gate     chan struct{}
	started  chan struct{}

	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	freed     atomic.Int32

	visible     int
	lastSamples []float32
	lastParams  native.Params
}

func (c *fakeContext) Full(p native.Params, samples []float32, onNewSegment func(int)) int {
	c.calls.Add(1)
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		cur := c.maxActive.Load()
		if n <= cur || c.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	c.lastSamples = slices.Clone(samples)
	c.lastParams = p
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.visible = 0
	for _, nNew := range c.script {
		c.visible = min(c.visible+nNew, len(c.segments))
		if onNewSegment != nil {
			onNewSegment(nNew)
		}
	}
	if c.rc != 0 {
		return c.rc
	}
	c.visible = len(c.segments)
	return 0
}

func (c *fakeContext) NSegments() int { return c.visible }
func (c *fakeContext) SegmentText(i int) string { return c.segments[i].text }
func (c *fakeContext) SegmentT0(i int) int64 { return c.segments[i].t0 }
func (c *fakeContext) SegmentT1(i int) int64 { return c.segments[i].t1 }
func (c *fakeContext) NTokens(i int) int { return len(c.segments[i].tokens) }
func (c *fakeContext) TokenText(i, j int) string { return c.segments[i].texts[j] }
func (c *fakeContext) TokenData(i, j int) native.TokenData {
	return c.segments[i].tokens[j]
}
func (c *fakeContext) TokenEOT() int { return fakeEOT }
func (c *fakeContext) FullLangID() int { return 0 }
func (c *fakeContext) LangStr(id int) string {
	if id == 0 {
		return "en"
	}
	return ""
}
func (c *fakeContext) LangMaxID() int { return 0 }
func (c *fakeContext) IsMultilingual() bool { return false }
func (c *fakeContext) Free() { c.freed.Add(1) }

func threeSegments() []fakeSegment {
	return []fakeSegment{
		{text: " one", t0: 0, t1: 100, texts: []string{" one", "[_EOT_]"},
			tokens: []native.TokenData{{ID: 11, P: 0.9, T0: 0, T1: 100}, {ID: fakeEOT, P: 1, T0: 100, T1: 100}}},
		{text: " two", t0: 100, t1: 250, texts: []string{" two"},
			tokens: []native.TokenData{{ID: 12, P: 0.8, T0: 100, T1: 250}}},
		{text: " three", t0: 250, t1: 300, texts: []string{" three"},
			tokens: []native.TokenData{{ID: 13, P: 0.7, T0: 250, T1: 300}}},
	}
}
