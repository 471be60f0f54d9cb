package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Batch submits one finite audio buffer to a Deepgram-compatible
// request/response transcription endpoint.
type Batch struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewBatch creates a batch provider. The client timeout is left unset; each
// request carries its own size-scaled deadline.
func NewBatch(baseURL, apiKey string, log *logrus.Entry) *Batch {
	return &Batch{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		log:        log,
	}
}

// Name returns the provider name.
func (b *Batch) Name() string { return "batch" }

// listenResponse mirrors the fields we read from the transcription endpoint.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []listenAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type listenAlternative struct {
	Transcript string `json:"transcript"`
	Paragraphs struct {
		Paragraphs []listenParagraph `json:"paragraphs"`
	} `json:"paragraphs"`
}

type listenParagraph struct {
	Speaker   int `json:"speaker"`
	Sentences []struct {
		Text string `json:"text"`
	} `json:"sentences"`
}

// Transcribe posts the audio unit and formats the response. Diarization
// yields speaker-attributed paragraphs; when the backend returns none the
// plain transcript is kept and a warning recorded.
func (b *Batch) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio unit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout(int64(len(audio))))
	defer cancel()

	query := url.Values{}
	query.Set("model", opts.Model)
	query.Set("smart_format", "true")
	query.Set("punctuate", "true")
	if opts.Diarize {
		query.Set("diarize", "true")
		query.Set("paragraphs", "true")
	}
	endpoint := b.baseURL + "/v1/listen?" + query.Encode()

	var parsed listenResponse
	if err := b.postAudio(ctx, endpoint, mimeTypeFor(audioPath), audio, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("transcription response contains no alternatives")
	}
	alt := parsed.Results.Channels[0].Alternatives[0]

	result := &Result{
		PlainText:     strings.TrimSpace(alt.Transcript),
		FormattedText: strings.TrimSpace(alt.Transcript),
	}

	if opts.Diarize {
		if formatted := formatSpeakerParagraphs(alt.Paragraphs.Paragraphs); formatted != "" {
			result.FormattedText = formatted
		} else {
			result.Warnings = append(result.Warnings,
				"diarization requested but backend returned no speaker structure; using plain transcript")
		}
	}

	return result, nil
}

// formatSpeakerParagraphs renders diarized paragraphs as
// "Speaker <n>: <text>\n\n", joining sentence fragments with single spaces.
func formatSpeakerParagraphs(paragraphs []listenParagraph) string {
	var b strings.Builder
	for _, para := range paragraphs {
		sentences := make([]string, 0, len(para.Sentences))
		for _, s := range para.Sentences {
			if text := strings.TrimSpace(s.Text); text != "" {
				sentences = append(sentences, text)
			}
		}
		if len(sentences) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("Speaker %d: %s\n\n", para.Speaker, strings.Join(sentences, " ")))
	}
	return b.String()
}

// postAudio performs the request with exponential backoff on transient
// failures. Client errors are permanent.
func (b *Batch) postAudio(ctx context.Context, endpoint, contentType string, audio []byte, target any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+b.apiKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("transcription server error: %d: %s", resp.StatusCode, truncate(body, 200))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("transcription request rejected: %d: %s", resp.StatusCode, truncate(body, 200)))
		}

		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode transcription response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
