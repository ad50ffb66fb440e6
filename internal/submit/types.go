// Package submit sends acquired images to the detection backend and tracks
// the resulting UI state (idle, loading, result, error).
package submit

import (
	"errors"
	"fmt"
)

var (
	ErrNoImage = errors.New("no image to submit")
	ErrBusy    = errors.New("a detection request is already in progress")
	ErrStale   = errors.New("detection response arrived after the session was reset")
)

// Source tells where an image came from.
type Source string

const (
	SourceFile   Source = "file"
	SourceCamera Source = "camera"
)

// Image is an acquired image ready for submission.
type Image struct {
	Data     []byte
	MIMEType string
	Filename string
	Source   Source
}

// Empty reports whether there is nothing to submit.
func (i *Image) Empty() bool {
	return i == nil || len(i.Data) == 0
}

// Params are forwarded to the backend verbatim. Empty fields are omitted.
type Params struct {
	Model      string
	Confidence string
}

// Result is a successful detection.
type Result struct {
	Count    int    `json:"count"`
	Image    string `json:"image"`
	ImageURL string `json:"imageUrl"`
}

// Phase is the UI state a page is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseResult
	PhaseError
)

var phaseNames = map[Phase]string{
	PhaseIdle:    "idle",
	PhaseLoading: "loading",
	PhaseResult:  "result",
	PhaseError:   "error",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// State is a snapshot of the UI state. Seq increases with every transition
// so observers can discard out-of-order deliveries.
type State struct {
	Phase        Phase   `json:"phase"`
	Result       *Result `json:"result,omitempty"`
	Error        string  `json:"error,omitempty"`
	Loading      bool    `json:"loading"`
	SubmissionID string  `json:"submissionId,omitempty"`
	Seq          uint64  `json:"seq"`
}

// TransportError wraps network and decoding failures during a detection request.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError is a domain-level error reported by the backend in its JSON body.
type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}
