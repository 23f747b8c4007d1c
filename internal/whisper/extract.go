package whisper

import "github.com/nupi-ai/whisper-runtime/internal/native"

// extractSegment copies segment index out of nctx. Tokens are read only when
// p.EnableTokens is set; token timestamps only when p.TokenTimestamps is set.
func extractSegment(nctx native.Context, index int, p Params) Segment {
	seg := Segment{
		Index: index,
		Text:  nctx.SegmentText(index),
		Start: ticksToDuration(nctx.SegmentT0(index)),
		End:   ticksToDuration(nctx.SegmentT1(index)),
	}
	if !p.EnableTokens {
		return seg
	}

	n := nctx.NTokens(index)
	eot := nctx.TokenEOT()
	seg.Tokens = make([]Token, 0, n)
	for j := 0; j < n; j++ {
		data := nctx.TokenData(index, j)
		tok := Token{
			ID:      data.ID,
			Text:    nctx.TokenText(index, j),
			P:       data.P,
			PLog:    data.PLog,
			Special: data.ID >= eot,
		}
		if p.TokenTimestamps {
			tok.Timestamped = true
			tok.Start = ticksToDuration(data.T0)
			tok.End = ticksToDuration(data.T1)
		}
		seg.Tokens = append(seg.Tokens, tok)
	}
	return seg
}

func collectResult(nctx native.Context, p Params) *Result {
	n := nctx.NSegments()
	res := &Result{
		Segments:   make([]Segment, 0, n),
		LanguageID: nctx.FullLangID(),
	}
	for i := 0; i < n; i++ {
		res.Segments = append(res.Segments, extractSegment(nctx, i, p))
	}
	res.Language = nctx.LangStr(res.LanguageID)
	return res
}
