package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"detectfront/internal/logger"

	"github.com/google/uuid"
)

// Detector performs one detection exchange. *Client implements it.
type Detector interface {
	Detect(ctx context.Context, img Image, params Params) (*Result, error)
}

// Sink receives every state transition. Publish is called with the
// pipeline lock held, so it must not block or call back into the pipeline.
type Sink interface {
	Publish(State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

func (f SinkFunc) Publish(s State) { f(s) }

// Pipeline turns images into detection requests and owns the UI state.
//
// Only one request is in flight at a time: Submit while loading is rejected
// with ErrBusy. Reset discards any in-flight request, whose late response is
// then dropped instead of overwriting the fresh state.
type Pipeline struct {
	detector Detector
	sink     Sink
	logger   *logger.Logger

	mu         sync.Mutex
	state      State
	generation uint64
}

func NewPipeline(detector Detector, sink Sink, logger *logger.Logger) *Pipeline {
	if sink == nil {
		sink = SinkFunc(func(State) {})
	}
	return &Pipeline{
		detector: detector,
		sink:     sink,
		logger:   logger,
	}
}

// State returns the current UI state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a submission is in flight.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Phase == PhaseLoading
}

// Submit sends img to the backend and blocks until the exchange settles.
// The returned state is the terminal Result or Error state. An empty image
// is a no-op returning ErrNoImage.
func (p *Pipeline) Submit(ctx context.Context, img *Image, params Params) (State, error) {
	if img.Empty() {
		return p.State(), ErrNoImage
	}

	p.mu.Lock()
	if p.state.Phase == PhaseLoading {
		current := p.state
		p.mu.Unlock()
		p.logger.Warning("Submission rejected: request %s still loading", current.SubmissionID)
		return current, ErrBusy
	}
	ticket := p.generation
	id := uuid.NewString()
	p.transitionLocked(State{Phase: PhaseLoading, SubmissionID: id})
	p.mu.Unlock()

	p.logger.Info("🚀 Submitting %s image %s (%d bytes, request %s)", img.Source, filenameFor(*img), len(img.Data), id)

	result, err := p.detect(ctx, *img, params)

	next := State{SubmissionID: id}
	if err != nil {
		next.Phase = PhaseError
		next.Error = err.Error()
	} else {
		next.Phase = PhaseResult
		next.Result = result
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != ticket {
		p.logger.Warning("Dropping late response for request %s", id)
		return p.state, ErrStale
	}
	p.transitionLocked(next)

	if err != nil {
		p.logger.Error("Detection request %s failed: %v", id, err)
	} else {
		p.logger.Info("✅ Request %s detected %d objects", id, result.Count)
	}
	return p.state, nil
}

// detect runs the detector and always settles: a nil result or a panic
// becomes a TransportError so the pipeline never stays loading.
func (p *Pipeline) detect(ctx context.Context, img Image, params Params) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Detector panicked: %v", r)
			result, err = nil, &TransportError{Err: fmt.Errorf("detector panicked: %v", r)}
		}
	}()

	result, err = p.detector.Detect(ctx, img, params)
	if err == nil && result == nil {
		err = &TransportError{Err: errors.New("backend returned no result")}
	}
	return result, err
}

// Fail shows an error that did not come from a submission, such as a camera
// fault. It is ignored while a submission is loading and then returns false.
func (p *Pipeline) Fail(message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Phase == PhaseLoading {
		return false
	}
	p.transitionLocked(State{Phase: PhaseError, Error: message})
	return true
}

// Failf is Fail with formatting.
func (p *Pipeline) Failf(format string, v ...interface{}) bool {
	return p.Fail(fmt.Sprintf(format, v...))
}

// Dismiss clears a displayed error.
func (p *Pipeline) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Phase == PhaseError {
		p.transitionLocked(State{Phase: PhaseIdle})
	}
}

// Reset returns to idle and invalidates any in-flight submission.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.transitionLocked(State{Phase: PhaseIdle})
}

func (p *Pipeline) transitionLocked(next State) {
	next.Seq = p.state.Seq + 1
	next.Loading = next.Phase == PhaseLoading
	p.state = next
	p.sink.Publish(next)
}
