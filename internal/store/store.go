// Package store persists finished transcription results.
package store

import "context"

// Record is the finished output of one transcription job.
type Record struct {
	JobID     string
	Filename  string
	Model     string
	Diarized  bool
	Plain     string
	Formatted string
	Summary   string
	KeyPoints []string
}

// Store receives finished job output. Implementations decide where it lives.
type Store interface {
	// Save persists the record and returns the transcript location.
	Save(ctx context.Context, rec Record) (string, error)
}
