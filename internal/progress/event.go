package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes what an Event carries.
type Kind string

// Supported event kinds.
const (
	// KindLog is a single progress log line.
	KindLog Kind = "log"
	// KindStatus is a job status transition.
	KindStatus Kind = "status"
)

// Event captures one progress update for a crawl job. Log events are emitted
// line-by-line as workers report, so subscribers see long crawls advance in
// real time.
type Event struct {
	// JobID identifies the job run.
	JobID uuid.UUID `json:"job_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"timestamp"`
	// Kind denotes whether this is a log line or a status transition.
	Kind Kind `json:"type"`
	// Status is the job status at emit time.
	Status string `json:"status"`
	// Progress is the job's completion fraction in [0,1].
	Progress float64 `json:"progress"`
	// Message is the log line for KindLog events.
	Message string `json:"message,omitempty"`
	// PagesCrawled counts pages completed so far.
	PagesCrawled int `json:"pages_crawled"`
	// CurrentPage is the URL being processed, when known.
	CurrentPage string `json:"current_page,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindLog:
		if e.Message == "" {
			return errors.New("log event requires a message")
		}
	case KindStatus:
		if e.Status == "" {
			return errors.New("status event requires a status")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Progress < 0 || e.Progress > 1 {
		return fmt.Errorf("progress %v out of range", e.Progress)
	}
	return nil
}
