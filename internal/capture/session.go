package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the capture session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StatePreviewing State = "previewing"
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Result is the single discriminated outcome of a pipeline run. State is
// StateDone on success (including degraded success, where OCR failed but the
// normalized image survived) and StateFailed otherwise.
type Result struct {
	State  State
	Image  *NormalizedImage
	Fields ExtractedFields
}

// Controller owns one camera acquisition and sequences the capture pipeline:
// grab frame, normalize, recognize, extract. Each controller instance is an
// independent session; there is no process-wide camera or OCR state.
type Controller struct {
	camera     Camera
	recognizer Recognizer
	normalizer *Normalizer
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	stream   Stream
	inFlight bool
	closed   bool
}

// NewController creates a capture session controller in the Idle state.
func NewController(camera Camera, recognizer Recognizer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		camera:     camera,
		recognizer: recognizer,
		normalizer: NewNormalizer(DefaultRatio, DefaultWidth),
		logger:     logger,
		state:      StateIdle,
	}
}

// State reports the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start moves Idle (or a finished session, on retake) to Previewing by
// acquiring the camera. Camera denial ends in Failed with ErrCameraAccess.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("session closed")
	}
	switch c.state {
	case StateIdle, StateDone, StateFailed:
	default:
		c.mu.Unlock()
		return fmt.Errorf("cannot start from state %q", c.state)
	}
	c.releaseLocked()
	c.state = StateRequesting
	c.mu.Unlock()

	stream, err := c.camera.Acquire(ctx, Constraints{
		Width:      1920,
		Height:     1080,
		FacingMode: "environment",
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.logger.Error("camera acquisition failed", "error", err)
		if errors.Is(err, ErrCameraAccess) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCameraAccess, err)
	}
	if c.closed {
		// Session was closed while the camera request was pending.
		stream.Release()
		c.state = StateFailed
		return errors.New("session closed")
	}
	c.stream = stream
	c.state = StatePreviewing
	return nil
}

// Capture runs the full pipeline once: grab a frame from the live stream,
// normalize it, recognize text, and extract fields. The camera is released on
// every exit path. A trigger while a run is in flight returns
// ErrCaptureInFlight and is otherwise a no-op.
func (c *Controller) Capture(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.inFlight || c.state == StateCapturing || c.state == StateProcessing {
		c.mu.Unlock()
		return nil, ErrCaptureInFlight
	}
	if c.state != StatePreviewing {
		c.mu.Unlock()
		return nil, fmt.Errorf("cannot capture from state %q", c.state)
	}
	c.inFlight = true
	c.state = StateCapturing
	stream := c.stream
	c.mu.Unlock()

	// The stream is released exactly once no matter how the pipeline exits;
	// Release itself is idempotent.
	defer func() {
		stream.Release()
		c.mu.Lock()
		c.stream = nil
		c.inFlight = false
		c.mu.Unlock()
	}()

	frame, err := stream.GrabFrame(ctx)
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("grabbing frame: %w", err)
	}

	c.setState(StateProcessing)

	img, err := c.normalizer.Normalize(frame)
	if err != nil {
		c.setState(StateFailed)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		// Caller went away mid-processing; the result is discarded but the
		// release above still runs.
		c.setState(StateFailed)
		return nil, err
	}

	text, err := c.recognizer.Recognize(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.setState(StateFailed)
			return nil, ctxErr
		}
		// Recognition failure is not fatal to the capture: the normalized
		// image is still handed back with empty fields so the user can fill
		// the form manually.
		c.logger.Warn("ocr failed, returning image without fields", "error", err)
		c.setState(StateDone)
		return &Result{State: StateDone, Image: img}, nil
	}

	fields := Extract(text.Text)
	c.setState(StateDone)
	return &Result{State: StateDone, Image: img, Fields: fields}, nil
}

// Retake discards all ephemeral capture state and restarts the session.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrCaptureInFlight
	}
	c.releaseLocked()
	c.state = StateIdle
	c.mu.Unlock()
	return c.Start(ctx)
}

// Close ends the session: the camera is released and the recognizer's worker
// resources are torn down. Safe to call at any point, including while a
// pipeline run is resolving; a result that arrives after Close is discarded
// by the caller.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.releaseLocked()
	c.mu.Unlock()
	if c.recognizer != nil {
		return c.recognizer.Close()
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) releaseLocked() {
	if c.stream != nil {
		c.stream.Release()
		c.stream = nil
	}
}
