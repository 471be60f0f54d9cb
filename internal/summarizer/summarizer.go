// Package summarizer provides transcript summarization through chat backends.
package summarizer

import (
	"context"
	"fmt"

	"github.com/scribehq/scribe/internal/config"
)

// Result contains the summarization output.
type Result struct {
	Summary   string
	KeyPoints []string
}

// Summarizer generates summaries from text.
type Summarizer interface {
	// Summarize generates a summary from the given text.
	Summarize(ctx context.Context, text string) (*Result, error)

	// Name returns the provider name.
	Name() string
}

// New creates a Summarizer based on configuration. An empty provider means
// summarization is unavailable and New returns (nil, nil). On error the
// returned interface is nil, never a typed nil wrapping a failed provider.
func New(cfg config.SummarizerConfig, secrets config.Secrets) (Summarizer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		s, err := NewOpenAI(cfg, secrets.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "anthropic":
		s, err := NewAnthropic(cfg, secrets.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported summarization provider: %s", cfg.Provider)
	}
}
