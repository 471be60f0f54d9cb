package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// summaryMarker separates the transcript from the summary in the inline
// provider's combined response.
const summaryMarker = "===SUMMARY==="

const transcribeInstruction = "Transcribe the audio in this media file completely and accurately. " +
	"Output only the transcript text, with no preamble or commentary."

const transcribeAndSummarizeInstruction = transcribeInstruction +
	" After the full transcript, output a line containing exactly \"" + summaryMarker + "\" " +
	"followed by a concise summary of the content."

// Inline submits a complete media file as inline encoded data to a
// Gemini-compatible multimodal generation endpoint.
type Inline struct {
	baseURL        string
	apiKey         string
	maxInlineBytes int64
	httpClient     *http.Client
	log            *logrus.Entry
}

// NewInline creates an inline provider with the given payload ceiling.
func NewInline(baseURL, apiKey string, maxInlineBytes int64, log *logrus.Entry) *Inline {
	return &Inline{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		maxInlineBytes: maxInlineBytes,
		httpClient:     &http.Client{},
		log:            log,
	}
}

// Name returns the provider name.
func (p *Inline) Name() string { return "inline" }

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *inlineDataPart `json:"inline_data,omitempty"`
}

type inlineDataPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe embeds the whole media file into a single generation request.
// The payload ceiling is checked before any network call.
func (p *Inline) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	fi, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat media file: %w", err)
	}
	encodedSize := int64(base64.StdEncoding.EncodedLen(int(fi.Size())))
	if encodedSize > p.maxInlineBytes {
		return nil, fmt.Errorf("%w: %d bytes encoded, limit %d", ErrPayloadTooLarge, encodedSize, p.maxInlineBytes)
	}

	media, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout(fi.Size()))
	defer cancel()

	instruction := transcribeInstruction
	if opts.Summarize {
		instruction = transcribeAndSummarizeInstruction
	}

	reqBody := generateRequest{
		Contents: []generateContent{{
			Parts: []generatePart{
				{Text: instruction},
				{InlineData: &inlineDataPart{
					MimeType: mimeTypeFor(audioPath),
					Data:     base64.StdEncoding.EncodeToString(media),
				}},
			},
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, opts.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if parsed.Error != nil {
			return nil, fmt.Errorf("generation request rejected: %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return nil, fmt.Errorf("generation request rejected: %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("generation response contains no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return splitTranscriptAndSummary(text.String(), opts.Summarize), nil
}

// splitTranscriptAndSummary separates the combined response at the summary
// marker. A missing marker keeps the whole text as transcript and records a
// warning instead of failing the unit.
func splitTranscriptAndSummary(text string, summarize bool) *Result {
	result := &Result{}

	if summarize {
		if idx := strings.Index(text, summaryMarker); idx >= 0 {
			result.PlainText = strings.TrimSpace(text[:idx])
			result.Summary = strings.TrimSpace(text[idx+len(summaryMarker):])
		} else {
			result.PlainText = strings.TrimSpace(text)
			result.Warnings = append(result.Warnings,
				"summary requested but response contained no summary section; keeping full text as transcript")
		}
	} else {
		result.PlainText = strings.TrimSpace(text)
	}

	result.FormattedText = result.PlainText
	return result
}
