//go:build whispercpp

package native

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include "stdlib.h"
#include "include/whisper.h"

void whisperGoNewSegment(struct whisper_context * ctx, struct whisper_state * state, int n_new, void * user_data);
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/cgo"
	"unsafe"
)

// Available reports whether the whisper.cpp backend is compiled in.
func Available() bool { return true }

type whisperLibrary struct {
	opts Options
}

// New returns the cgo-backed library.
func New(opts Options) (Library, error) {
	return &whisperLibrary{opts: opts}, nil
}

func (l *whisperLibrary) Name() string { return "whisper.cpp" }

func (l *whisperLibrary) contextParams() C.struct_whisper_context_params {
	cParams := C.whisper_context_default_params()
	if l.opts.UseGPU != nil {
		cParams.use_gpu = C.bool(*l.opts.UseGPU)
	}
	if l.opts.FlashAttention != nil {
		cParams.flash_attn = C.bool(*l.opts.FlashAttention)
	}
	return cParams
}

func (l *whisperLibrary) InitFromFile(path string) (Context, error) {
	if path == "" {
		return nil, errors.New("native: model path required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ctx := C.whisper_init_from_file_with_params(cPath, l.contextParams())
	if ctx == nil {
		return nil, fmt.Errorf("%w: %s", ErrInitFailed, path)
	}
	return &whisperContext{ctx: ctx}, nil
}

func (l *whisperLibrary) InitFromBuffer(buf []byte) (Context, error) {
	if len(buf) == 0 {
		return nil, errors.New("native: model buffer is empty")
	}
	// whisper.cpp reads the buffer during init only; hand it a C-owned copy so the
	// Go slice is free to go away as soon as we return.
	cBuf := C.CBytes(buf)
	defer C.free(cBuf)

	ctx := C.whisper_init_from_buffer_with_params(cBuf, C.size_t(len(buf)), l.contextParams())
	if ctx == nil {
		return nil, fmt.Errorf("%w: buffer of %d bytes", ErrInitFailed, len(buf))
	}
	return &whisperContext{ctx: ctx}, nil
}

type whisperContext struct {
	ctx *C.struct_whisper_context
}

func (c *whisperContext) Full(p Params, samples []float32, onNewSegment func(nNew int)) int {
	if len(samples) == 0 {
		return -1
	}

	strategy := C.enum_whisper_sampling_strategy(C.WHISPER_SAMPLING_GREEDY)
	if p.Strategy == SamplingBeamSearch {
		strategy = C.WHISPER_SAMPLING_BEAM_SEARCH
	}
	params := C.whisper_full_default_params(strategy)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	params.print_timestamps = C.bool(false)
	params.print_special = C.bool(false)
	params.translate = C.bool(p.Translate)
	params.no_context = C.bool(p.NoContext)
	params.single_segment = C.bool(p.SingleSegment)
	params.token_timestamps = C.bool(p.TokenTimestamps)
	params.audio_ctx = C.int(p.AudioCtx)
	if p.Threads > 0 {
		params.n_threads = C.int(p.Threads)
	}
	if p.BestOf > 0 {
		params.greedy.best_of = C.int(p.BestOf)
	}
	if p.BeamSize > 0 {
		params.beam_search.beam_size = C.int(p.BeamSize)
	}

	lang := p.Language
	if lang == "" {
		lang = "auto"
	}
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))
	params.language = cLang

	if p.InitialPrompt != "" {
		cPrompt := C.CString(p.InitialPrompt)
		defer C.free(unsafe.Pointer(cPrompt))
		params.initial_prompt = cPrompt
	}

	var handle cgo.Handle
	if onNewSegment != nil {
		handle = cgo.NewHandle(segmentCallback(onNewSegment))
		defer handle.Delete()
		params.new_segment_callback = (C.whisper_new_segment_callback)(C.whisperGoNewSegment)
		params.new_segment_callback_user_data = unsafe.Pointer(&handle)
	}

	cSamples := (*C.float)(unsafe.Pointer(&samples[0]))
	ret := C.whisper_full(c.ctx, params, cSamples, C.int(len(samples)))
	runtime.KeepAlive(samples)
	runtime.KeepAlive(&handle)
	return int(ret)
}

func (c *whisperContext) NSegments() int {
	return int(C.whisper_full_n_segments(c.ctx))
}

func (c *whisperContext) SegmentText(i int) string {
	return C.GoString(C.whisper_full_get_segment_text(c.ctx, C.int(i)))
}

func (c *whisperContext) SegmentT0(i int) int64 {
	return int64(C.whisper_full_get_segment_t0(c.ctx, C.int(i)))
}

func (c *whisperContext) SegmentT1(i int) int64 {
	return int64(C.whisper_full_get_segment_t1(c.ctx, C.int(i)))
}

func (c *whisperContext) NTokens(i int) int {
	return int(C.whisper_full_n_tokens(c.ctx, C.int(i)))
}

func (c *whisperContext) TokenText(i, j int) string {
	return C.GoString(C.whisper_full_get_token_text(c.ctx, C.int(i), C.int(j)))
}

func (c *whisperContext) TokenData(i, j int) TokenData {
	d := C.whisper_full_get_token_data(c.ctx, C.int(i), C.int(j))
	return TokenData{
		ID:   int(d.id),
		P:    float32(d.p),
		PLog: float32(d.plog),
		T0:   int64(d.t0),
		T1:   int64(d.t1),
	}
}

func (c *whisperContext) TokenEOT() int {
	return int(C.whisper_token_eot(c.ctx))
}

func (c *whisperContext) FullLangID() int {
	return int(C.whisper_full_lang_id(c.ctx))
}

func (c *whisperContext) LangStr(id int) string {
	if id < 0 {
		return ""
	}
	return C.GoString(C.whisper_lang_str(C.int(id)))
}

func (c *whisperContext) LangMaxID() int {
	return int(C.whisper_lang_max_id())
}

func (c *whisperContext) IsMultilingual() bool {
	return C.whisper_is_multilingual(c.ctx) != 0
}

func (c *whisperContext) Free() {
	if c.ctx != nil {
		C.whisper_free(c.ctx)
		c.ctx = nil
	}
}

//export whisperGoNewSegment
func whisperGoNewSegment(ctx *C.struct_whisper_context, state *C.struct_whisper_state, nNew C.int, userData unsafe.Pointer) {
	relayNewSegment(userData, int(nNew))
}
