package speech

import (
	"context"
	"strings"
	"time"
)

// Request is what the pipeline hands to a backend: a canonical mono 16 kHz
// 16-bit PCM WAV on disk.
type Request struct {
	AudioPath string
	Language  string
	Timeout   time.Duration
}

// Segment is one recognised utterance with its alternatives, best first.
type Segment struct {
	Alternatives []string
}

// Response is the raw backend output.
type Response struct {
	Segments []Segment
}

// Backend is a speech recogniser. Recognize blocks until the backend answers,
// the timeout elapses or ctx is cancelled.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, req Request) (Response, error)
}

// Transcript joins the first alternative of every segment with single spaces.
func (r Response) Transcript() string {
	parts := make([]string, 0, len(r.Segments))
	for _, segment := range r.Segments {
		if len(segment.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(segment.Alternatives[0])
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
