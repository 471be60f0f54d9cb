// Package provider adapts external speech-to-text backends behind one
// capability contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrPayloadTooLarge is returned before any network call when a file exceeds
// the provider's inline payload ceiling.
var ErrPayloadTooLarge = errors.New("payload exceeds provider inline limit")

// Kind identifies a provider variant.
type Kind string

const (
	// KindBatch submits one finite audio buffer to a request/response
	// transcription endpoint.
	KindBatch Kind = "batch"

	// KindInline submits a complete media file as inline encoded data to a
	// multimodal generation endpoint.
	KindInline Kind = "inline"
)

// Options carries the per-unit transcription request options.
type Options struct {
	Model     string
	Diarize   bool
	Summarize bool
}

// Result is the uniform output of one transcription unit.
type Result struct {
	// PlainText is the raw transcript.
	PlainText string

	// FormattedText is the transcript with optional speaker labels. Equal to
	// PlainText when no speaker structure was available.
	FormattedText string

	// Summary is set only when the provider produced one in the same call.
	Summary string

	// Warnings are non-fatal anomalies encountered while transcribing.
	Warnings []string
}

// Transcriber submits one unit of audio to a backend.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	Name() string
}

// modelKinds is the explicit model-to-variant mapping table. Provider
// selection is a pure function of the requested model identifier.
var modelKinds = map[string]Kind{
	"nova-2":           KindBatch,
	"nova-3":           KindBatch,
	"enhanced":         KindBatch,
	"base":             KindBatch,
	"whisper-large":    KindBatch,
	"gemini-2.0-flash": KindInline,
	"gemini-2.5-flash": KindInline,
	"gemini-2.5-pro":   KindInline,
}

// KindForModel returns the provider variant that services a model id.
func KindForModel(model string) (Kind, bool) {
	kind, ok := modelKinds[model]
	return kind, ok
}

// Models returns the model ids served by a variant, for surfacing in the API.
func Models(kind Kind) []string {
	var out []string
	for m, k := range modelKinds {
		if k == kind {
			out = append(out, m)
		}
	}
	return out
}

// Registry holds the configured variant implementations and resolves one
// from a model id.
type Registry struct {
	byKind map[Kind]Transcriber
}

// NewRegistry builds a registry. Nil entries mean the variant is not
// configured (missing API key).
func NewRegistry(batch, inline Transcriber) *Registry {
	byKind := make(map[Kind]Transcriber)
	if batch != nil {
		byKind[KindBatch] = batch
	}
	if inline != nil {
		byKind[KindInline] = inline
	}
	return &Registry{byKind: byKind}
}

// ForModel returns the transcriber servicing the given model id.
func (r *Registry) ForModel(model string) (Transcriber, error) {
	kind, ok := KindForModel(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	t, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("no %s provider configured for model %q", kind, model)
	}
	return t, nil
}

// requestTimeout scales a network timeout with payload size so a large
// upload is not cut off, while an orphaned job stays bounded.
func requestTimeout(size int64) time.Duration {
	timeout := time.Minute + time.Duration(size/(64<<10))*time.Second
	if timeout > 15*time.Minute {
		timeout = 15 * time.Minute
	}
	return timeout
}

// mimeTypeFor maps a media filename to its MIME type, defaulting to
// octet-stream for unknown extensions.
func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}
