// Package job implements the transcription job lifecycle: submission,
// orchestration, progress delivery, and cancellation.
package job

import (
	"context"
	"time"
)

// State is a job lifecycle state.
type State string

const (
	StateCreated             State = "created"
	StateDurationCheck       State = "duration_check"
	StateSegmenting          State = "segmenting"
	StateDirectTranscribe    State = "direct_transcribe"
	StateSegmentTranscribing State = "segment_transcribing"
	StateSummarizing         State = "summarizing"
	StateDone                State = "done"
	StateCancelled           State = "cancelled"
	StateError               State = "error"
)

// Terminal reports whether the state ends the job.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateError
}

// Options are the per-job transcription request options.
type Options struct {
	Model           string `json:"model"`
	Diarize         bool   `json:"diarize"`
	Summarize       bool   `json:"summarize"`
	SegmentBudgetMB int    `json:"segment_budget_mb,omitempty"`
}

// Job is one transcription request moving through the pipeline.
type Job struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Options    Options   `json:"options"`
	State      State     `json:"state"`
	Transcript string    `json:"transcript,omitempty"`
	Formatted  string    `json:"formatted,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Internal fields (not serialized)
	sourcePath string
	ctx        context.Context
	cancel     context.CancelFunc
}

// SourcePath returns the uploaded media file backing this job.
func (j *Job) SourcePath() string { return j.sourcePath }

// Context returns the job's cancellation context.
func (j *Job) Context() context.Context { return j.ctx }
