package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scribehq/scribe/internal/logging"
	"github.com/scribehq/scribe/internal/media"
	"github.com/scribehq/scribe/internal/provider"
	"github.com/scribehq/scribe/internal/store"
	"github.com/scribehq/scribe/internal/summarizer"
)

// directThreshold is the duration at or below which media is transcribed
// whole, without segmentation.
const directThreshold = 30 * time.Second

// errCancelled marks a job torn down by a cancellation signal.
var errCancelled = errors.New("job cancelled")

// Prober obtains media metadata for segment sizing.
type Prober interface {
	Probe(ctx context.Context, jobID, path string) (media.ProbeInfo, error)
}

// Segmenter splits media into ordered audio segments.
type Segmenter interface {
	Split(ctx context.Context, jobID, inputPath string, info media.ProbeInfo, targetBudget int64) ([]media.Segment, error)
	CleanupJob(jobID string)
}

// Providers resolves a transcriber from a model identifier.
type Providers interface {
	ForModel(model string) (provider.Transcriber, error)
}

// Orchestrator drives one job from submission to a terminal state.
type Orchestrator struct {
	jobs       *Registry
	prober     Prober
	segmenter  Segmenter
	providers  Providers
	summarizer summarizer.Summarizer // nil when no backend is configured
	store      store.Store           // nil disables persistence

	defaultBudgetMB int
	log             *logrus.Entry
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(jobs *Registry, prober Prober, segmenter Segmenter, providers Providers,
	summ summarizer.Summarizer, st store.Store, defaultBudgetMB int, log *logrus.Entry) *Orchestrator {
	if defaultBudgetMB <= 0 {
		defaultBudgetMB = 10
	}
	return &Orchestrator{
		jobs:            jobs,
		prober:          prober,
		segmenter:       segmenter,
		providers:       providers,
		summarizer:      summ,
		store:           st,
		defaultBudgetMB: defaultBudgetMB,
		log:             log,
	}
}

// Run drives the job to a terminal state. It is the Registry's RunFunc.
// Every exit path deletes the job's files and closes its progress channel.
func (o *Orchestrator) Run(ctx context.Context, j *Job, events *Channel) {
	defer func() {
		o.cleanupFiles(j)
		events.CloseAfter(closeGrace)
	}()

	err := o.process(ctx, j, events)
	if err == nil {
		return
	}

	if errors.Is(err, errCancelled) || errors.Is(err, context.Canceled) {
		o.jobs.SetState(j.ID, StateCancelled)
		events.Publish(Event{JobID: j.ID, Type: EventDone, State: StateCancelled, Message: "job cancelled"})
		logging.ForJob(o.log, j.ID).Info("job cancelled")
		return
	}

	o.jobs.SetError(j.ID, err.Error())
	o.jobs.SetState(j.ID, StateError)
	events.Publish(Event{JobID: j.ID, Type: EventError, Message: err.Error()})
	logging.ForJob(o.log, j.ID).WithError(err).Error("job failed")
}

func (o *Orchestrator) process(ctx context.Context, j *Job, events *Channel) error {
	if ctx.Err() != nil {
		return errCancelled
	}

	transcriber, err := o.providers.ForModel(j.Options.Model)
	if err != nil {
		return err
	}

	o.jobs.SetState(j.ID, StateDurationCheck)

	info, probeErr := o.prober.Probe(ctx, j.ID, j.SourcePath())
	if ctx.Err() != nil {
		return errCancelled
	}
	if probeErr != nil {
		// Probe failure is recoverable. Unknown duration is treated as
		// large, which forces the segmentation path.
		logging.ForJob(o.log, j.ID).WithError(probeErr).Warn("probe failed, assuming large media")
		events.Publish(Event{JobID: j.ID, Type: EventWarning,
			Message: "could not determine media duration; treating input as large"})
	}

	if probeErr == nil && info.Duration <= directThreshold {
		return o.direct(ctx, j, events, transcriber)
	}

	o.jobs.SetState(j.ID, StateSegmenting)

	budget := int64(j.Options.SegmentBudgetMB) << 20
	if budget <= 0 {
		budget = int64(o.defaultBudgetMB) << 20
	}

	segments, err := o.segmenter.Split(ctx, j.ID, j.SourcePath(), info, budget)
	if ctx.Err() != nil {
		return errCancelled
	}
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		events.Publish(Event{JobID: j.ID, Type: EventWarning,
			Message: "segmenter produced no segments; transcribing the original file directly"})
		return o.direct(ctx, j, events, transcriber)
	}

	o.jobs.SetState(j.ID, StateSegmentTranscribing)

	total := len(segments)
	for _, seg := range segments {
		if ctx.Err() != nil {
			return errCancelled
		}

		res, err := transcriber.Transcribe(ctx, seg.Path, provider.Options{
			Model:   j.Options.Model,
			Diarize: j.Options.Diarize,
		})

		// Each segment file is deleted right after its own attempt,
		// success or not.
		os.Remove(seg.Path)

		if ctx.Err() != nil {
			// A provider result arriving after cancellation is discarded,
			// never appended to a torn-down job.
			return errCancelled
		}
		if err != nil {
			logging.ForJob(o.log, j.ID).WithField("segment", seg.Index).WithError(err).Warn("segment transcription failed")
			events.Publish(Event{JobID: j.ID, Type: EventWarning,
				Message: fmt.Sprintf("segment %d failed and its text is omitted: %v", seg.Index, err),
				Segment: seg.Index, Total: total})
			continue
		}

		for _, w := range res.Warnings {
			events.Publish(Event{JobID: j.ID, Type: EventWarning, Message: w, Segment: seg.Index, Total: total})
		}

		o.jobs.AppendTranscript(j.ID, res.PlainText, res.FormattedText)
		events.Publish(Event{JobID: j.ID, Type: EventPartialTranscript,
			Text: res.FormattedText, Segment: seg.Index, Total: total})
	}

	return o.finish(ctx, j, events, "")
}

// direct transcribes the original file as one unit. Any provider failure
// here is fatal to the job.
func (o *Orchestrator) direct(ctx context.Context, j *Job, events *Channel, transcriber provider.Transcriber) error {
	o.jobs.SetState(j.ID, StateDirectTranscribe)

	res, err := transcriber.Transcribe(ctx, j.SourcePath(), provider.Options{
		Model:     j.Options.Model,
		Diarize:   j.Options.Diarize,
		Summarize: j.Options.Summarize,
	})
	if ctx.Err() != nil {
		return errCancelled
	}
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		events.Publish(Event{JobID: j.ID, Type: EventWarning, Message: w})
	}

	o.jobs.AppendTranscript(j.ID, res.PlainText, res.FormattedText)
	events.Publish(Event{JobID: j.ID, Type: EventPartialTranscript, Text: res.FormattedText, Total: 1})

	return o.finish(ctx, j, events, res.Summary)
}

// finish runs the optional summarization stage, hands the result to the
// store, and marks the job done.
func (o *Orchestrator) finish(ctx context.Context, j *Job, events *Channel, providerSummary string) error {
	if j.Options.Summarize {
		snapshot := o.jobs.Get(j.ID)
		switch {
		case providerSummary != "":
			// The inline provider already produced a summary in the same call.
			o.jobs.SetSummary(j.ID, providerSummary, nil)
			events.Publish(Event{JobID: j.ID, Type: EventSummaryResult, Text: providerSummary})

		case snapshot == nil || snapshot.Transcript == "":
			events.Publish(Event{JobID: j.ID, Type: EventWarning,
				Message: "summarization skipped: accumulated transcript is empty"})

		case o.summarizer == nil:
			events.Publish(Event{JobID: j.ID, Type: EventWarning,
				Message: "summarization skipped: no summarization backend configured"})

		default:
			o.jobs.SetState(j.ID, StateSummarizing)
			res, err := o.summarizer.Summarize(ctx, snapshot.Transcript)
			if ctx.Err() != nil {
				return errCancelled
			}
			if err != nil {
				events.Publish(Event{JobID: j.ID, Type: EventWarning,
					Message: fmt.Sprintf("summarization failed: %v", err)})
			} else {
				o.jobs.SetSummary(j.ID, res.Summary, res.KeyPoints)
				events.Publish(Event{JobID: j.ID, Type: EventSummaryResult, Text: res.Summary})
			}
		}
	}

	if o.store != nil {
		if final := o.jobs.Get(j.ID); final != nil && final.Transcript != "" {
			_, err := o.store.Save(ctx, store.Record{
				JobID:     final.ID,
				Filename:  final.Filename,
				Model:     final.Options.Model,
				Diarized:  final.Options.Diarize,
				Plain:     final.Transcript,
				Formatted: final.Formatted,
				Summary:   final.Summary,
				KeyPoints: final.KeyPoints,
			})
			if err != nil {
				logging.ForJob(o.log, j.ID).WithError(err).Warn("failed to persist result")
				events.Publish(Event{JobID: j.ID, Type: EventWarning,
					Message: fmt.Sprintf("failed to persist result: %v", err)})
			}
		}
	}

	o.jobs.SetState(j.ID, StateDone)
	events.Publish(Event{JobID: j.ID, Type: EventDone, State: StateDone})
	logging.ForJob(o.log, j.ID).Info("job done")
	return nil
}

// cleanupFiles removes the uploaded source and any files still carrying the
// job's prefix. Runs on every terminal path.
func (o *Orchestrator) cleanupFiles(j *Job) {
	if j.SourcePath() != "" {
		_ = os.Remove(j.SourcePath())
	}
	if o.segmenter != nil {
		o.segmenter.CleanupJob(j.ID)
	}
}
