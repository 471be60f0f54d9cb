package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MinSegmentDuration is the floor for computed segment durations.
	MinSegmentDuration = 10 * time.Second

	// MaxSegmentDuration is the ceiling for computed segment durations.
	MaxSegmentDuration = 900 * time.Second

	// FallbackSegmentDuration is used when probing failed or bitrate is zero.
	FallbackSegmentDuration = 600 * time.Second
)

// Segment is one time-bounded slice of re-encoded audio.
type Segment struct {
	Index int
	Path  string
}

// SegmentationError reports an ffmpeg failure with its captured diagnostics.
type SegmentationError struct {
	Output string
	Err    error
}

func (e *SegmentationError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 500 {
		out = out[len(out)-500:]
	}
	if out != "" {
		return fmt.Sprintf("segmentation failed: %v: %s", e.Err, out)
	}
	return fmt.Sprintf("segmentation failed: %v", e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// Segmenter splits media into fixed-format audio segments sized to
// approximate a target byte budget.
type Segmenter struct {
	ffmpegPath string
	runner     Runner
	dir        string
	log        *logrus.Entry
}

// NewSegmenter constructs a segmenter writing into dir.
func NewSegmenter(ffmpegPath string, runner Runner, dir string, log *logrus.Entry) *Segmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Segmenter{ffmpegPath: ffmpegPath, runner: runner, dir: dir, log: log}
}

// PlanSegmentDuration computes the per-segment duration for the given probe
// result and target byte budget. The estimate-then-clamp design keeps the
// result usable even for corrupt or unusual metadata.
func PlanSegmentDuration(info ProbeInfo, targetBudget int64) time.Duration {
	if info.Duration <= 0 || info.Size <= 0 || info.BitRate <= 0 || targetBudget <= 0 {
		return FallbackSegmentDuration
	}

	segments := (info.Size + targetBudget - 1) / targetBudget
	if segments < 1 {
		segments = 1
	}

	totalSecs := int64(info.Duration / time.Second)
	if info.Duration%time.Second != 0 {
		totalSecs++
	}
	segSecs := (totalSecs + segments - 1) / segments

	dur := time.Duration(segSecs) * time.Second
	if dur < MinSegmentDuration {
		dur = MinSegmentDuration
	}
	if dur > MaxSegmentDuration {
		dur = MaxSegmentDuration
	}
	return dur
}

// SanitizeJobID reduces a job id to a filename-safe character set.
func SanitizeJobID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// SegmentPrefix returns the filename prefix all of a job's segments share.
func SegmentPrefix(jobID string) string {
	return SanitizeJobID(jobID) + "_seg_"
}

// Split re-encodes the input into 16 kHz mono MP3 segments of the planned
// duration. A clean ffmpeg exit that produced zero files is not an error;
// the caller falls back to direct processing.
func (s *Segmenter) Split(ctx context.Context, jobID, inputPath string, info ProbeInfo, targetBudget int64) ([]Segment, error) {
	segDur := PlanSegmentDuration(info, targetBudget)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, &SegmentationError{Err: err}
	}

	pattern := filepath.Join(s.dir, SegmentPrefix(jobID)+"%03d.mp3")
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libmp3lame",
		"-b:a", "64k",
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", int(segDur.Seconds())),
		"-reset_timestamps", "1",
		pattern,
	}

	res, err := s.runner.Run(ctx, jobID, s.ffmpegPath, args...)
	if err != nil {
		return nil, &SegmentationError{Output: res.Stderr, Err: err}
	}

	segments, err := s.ListSegments(jobID)
	if err != nil {
		return nil, &SegmentationError{Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"job_id":      jobID,
		"segment_dur": segDur,
		"segments":    len(segments),
	}).Info("segmented media")

	return segments, nil
}

// ListSegments returns the job's segment files in index order.
func (s *Segmenter) ListSegments(jobID string) ([]Segment, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, SegmentPrefix(jobID)+"*.mp3"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	segments := make([]Segment, 0, len(matches))
	for i, path := range matches {
		segments = append(segments, Segment{Index: i, Path: path})
	}
	return segments, nil
}

// CleanupJob removes every file in the segment directory carrying the job's
// prefix. Missing files are not an error.
func (s *Segmenter) CleanupJob(jobID string) {
	matches, err := filepath.Glob(filepath.Join(s.dir, SanitizeJobID(jobID)+"_*"))
	if err != nil {
		return
	}
	for _, path := range matches {
		_ = os.Remove(path)
	}
}
