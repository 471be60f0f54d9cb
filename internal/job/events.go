package job

import (
	"sync"
	"time"
)

// EventType classifies a progress event.
type EventType string

const (
	EventStatus            EventType = "status"
	EventWarning           EventType = "warning"
	EventPartialTranscript EventType = "partial_transcript"
	EventSummaryResult     EventType = "summary_result"
	EventError             EventType = "error"
	EventDone              EventType = "done"
)

// Event is one typed progress notification for a job.
type Event struct {
	JobID   string    `json:"job_id"`
	Type    EventType `json:"type"`
	State   State     `json:"state,omitempty"`
	Message string    `json:"message,omitempty"`
	Text    string    `json:"text,omitempty"`
	Segment int       `json:"segment,omitempty"`
	Total   int       `json:"total,omitempty"`
}

const (
	// eventBufferSize bounds the per-job channel. A subscriber that falls
	// further behind than this loses events rather than stalling the job.
	eventBufferSize = 64

	// closeGrace lets a slow subscriber drain the terminal event before the
	// channel is closed under it.
	closeGrace = 250 * time.Millisecond
)

// Channel is a bounded, best-effort, single-consumer progress channel for one
// job. The orchestrator is the only producer.
type Channel struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newChannel() *Channel {
	return &Channel{ch: make(chan Event, eventBufferSize)}
}

// Events returns the receive side. The channel is closed shortly after the
// job reaches a terminal state.
func (c *Channel) Events() <-chan Event { return c.ch }

// Publish delivers the event without blocking. A full buffer or an already
// closed channel drops the event; orchestration never waits on a subscriber.
func (c *Channel) Publish(evt Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- evt:
		return true
	default:
		return false
	}
}

// CloseAfter closes the channel once the delay has passed. Safe to call more
// than once.
func (c *Channel) CloseAfter(d time.Duration) {
	time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.closed = true
		close(c.ch)
	})
}
