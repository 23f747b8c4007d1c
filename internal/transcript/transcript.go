// Package transcript renders inference results for humans and machines.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/nupi-ai/whisper-runtime/internal/whisper"
)

// Format names an output encoding.
type Format string

const (
	FormatText       Format = "text"
	FormatTimestamps Format = "timestamps"
	FormatJSON       Format = "json"
	FormatYAML       Format = "yaml"
	FormatMsgpack    Format = "msgpack"
)

// Formats lists every supported Format.
var Formats = []Format{FormatText, FormatTimestamps, FormatJSON, FormatYAML, FormatMsgpack}

// ParseFormat accepts a Format name case-insensitively. Empty selects FormatText.
func ParseFormat(value string) (Format, error) {
	v := Format(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if f == v {
			return f, nil
		}
	}
	return "", fmt.Errorf("transcript: unknown format %q", value)
}

// Document is the serialised form of one transcription.
type Document struct {
	RequestID  string            `json:"request_id,omitempty" yaml:"request_id,omitempty" msgpack:"request_id,omitempty"`
	Source     string            `json:"source,omitempty" yaml:"source,omitempty" msgpack:"source,omitempty"`
	Language   string            `json:"language" yaml:"language" msgpack:"language"`
	Text       string            `json:"text" yaml:"text" msgpack:"text"`
	Segments   []whisper.Segment `json:"segments" yaml:"segments" msgpack:"segments"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" msgpack:"metadata,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty" msgpack:"duration_ms,omitempty"`
}

// FromResult builds a Document from res.
func FromResult(res *whisper.Result, metadata map[string]string) Document {
	if res == nil {
		return Document{Segments: []whisper.Segment{}, Metadata: metadata}
	}
	return Document{
		Language: res.Language,
		Text:     strings.TrimSpace(res.Text()),
		Segments: res.Segments,
		Metadata: metadata,
	}
}

// Write encodes doc to w.
func Write(w io.Writer, format Format, doc Document) error {
	switch format {
	case FormatText, "":
		_, err := fmt.Fprintln(w, doc.Text)
		return err
	case FormatTimestamps:
		for _, seg := range doc.Segments {
			if err := WriteSegment(w, seg); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("transcript: unknown format %q", format)
	}
}

// WriteSegment prints one segment as "[start --> end] text".
func WriteSegment(w io.Writer, seg whisper.Segment) error {
	_, err := fmt.Fprintf(w, "%s %s\n", seg.TimestampString(), strings.TrimSpace(seg.Text))
	return err
}

// DecodeMsgpack reads a Document written with FormatMsgpack.
func DecodeMsgpack(r io.Reader) (Document, error) {
	var doc Document
	err := msgpack.NewDecoder(r).Decode(&doc)
	return doc, err
}
