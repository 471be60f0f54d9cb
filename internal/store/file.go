package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore writes each finished job as markdown files under a base
// directory: <base>/<job id>/transcript.md and, when present, summary.md.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Save writes the record to disk and returns the transcript path.
func (s *FileStore) Save(_ context.Context, rec Record) (string, error) {
	dir := filepath.Join(s.baseDir, rec.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	transcriptPath := filepath.Join(dir, "transcript.md")
	if err := os.WriteFile(transcriptPath, []byte(renderTranscript(rec)), 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}

	if rec.Summary != "" {
		summaryPath := filepath.Join(dir, "summary.md")
		if err := os.WriteFile(summaryPath, []byte(renderSummary(rec)), 0644); err != nil {
			return "", fmt.Errorf("failed to write summary: %w", err)
		}
	}

	return transcriptPath, nil
}

func renderTranscript(rec Record) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Transcript: %s\n\n", rec.Filename))
	b.WriteString(fmt.Sprintf("**Model:** %s\n", rec.Model))
	if rec.Diarized {
		b.WriteString("**Diarization:** on\n")
	}
	b.WriteString(fmt.Sprintf("**Transcribed:** %s\n", time.Now().Format("2006-01-02 15:04:05")))
	b.WriteString("\n---\n\n")

	text := rec.Formatted
	if text == "" {
		text = rec.Plain
	}
	b.WriteString(text)
	b.WriteString("\n")

	return b.String()
}

func renderSummary(rec Record) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Summary: %s\n\n", rec.Filename))
	b.WriteString(fmt.Sprintf("**Summarized:** %s\n", time.Now().Format("2006-01-02 15:04:05")))
	b.WriteString("\n---\n\n")

	if len(rec.KeyPoints) > 0 {
		b.WriteString("## Key Points\n\n")
		for _, point := range rec.KeyPoints {
			b.WriteString(fmt.Sprintf("- %s\n", point))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Summary\n\n")
	b.WriteString(rec.Summary)
	b.WriteString("\n")

	return b.String()
}
