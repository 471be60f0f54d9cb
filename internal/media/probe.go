package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ProbeInfo holds the media metadata the orchestrator needs to size segments.
type ProbeInfo struct {
	Duration time.Duration
	Size     int64
	BitRate  int64 // bytes per second, 0 when unknown
}

// ProbeError reports an ffprobe failure with its captured diagnostics.
type ProbeError struct {
	Output string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("probe failed: %v: %s", e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("probe failed: %v", e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober obtains duration, size, and bitrate for an input file via ffprobe.
type Prober struct {
	ffprobePath string
	runner      Runner
	log         *logrus.Entry
}

// NewProber constructs a prober using the given runner.
func NewProber(ffprobePath string, runner Runner, log *logrus.Entry) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath, runner: runner, log: log}
}

// ffprobeOutput mirrors the JSON emitted by ffprobe -show_format.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe returns media metadata, or a *ProbeError the caller is expected to
// treat as recoverable.
func (p *Prober) Probe(ctx context.Context, jobID, path string) (ProbeInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		path,
	}

	res, err := p.runner.Run(ctx, jobID, p.ffprobePath, args...)
	if err != nil {
		return ProbeInfo{}, &ProbeError{Output: res.Stderr, Err: err}
	}

	var out ffprobeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return ProbeInfo{}, &ProbeError{Output: res.Stdout, Err: err}
	}

	info := ProbeInfo{}
	if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && secs > 0 {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	if size, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
		info.Size = size
	}
	if info.Size == 0 {
		// ffprobe omits size for some containers; fall back to stat.
		if fi, err := os.Stat(path); err == nil {
			info.Size = fi.Size()
		}
	}

	if info.Duration > 0 && info.Size > 0 {
		info.BitRate = int64(float64(info.Size) / info.Duration.Seconds())
	}

	if info.Duration == 0 {
		return info, &ProbeError{
			Output: res.Stdout,
			Err:    fmt.Errorf("no duration in probe output"),
		}
	}

	p.log.WithFields(logrus.Fields{
		"job_id":   jobID,
		"duration": info.Duration,
		"size":     info.Size,
		"bitrate":  info.BitRate,
	}).Debug("probed media")

	return info, nil
}
