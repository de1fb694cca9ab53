package capture

import (
	"context"
	"errors"
)

// Errors surfaced by the capture pipeline. Everything a pipeline stage can
// fail with wraps one of these so callers can branch on the failure class.
var (
	// ErrCameraAccess means the camera was denied or is unavailable.
	ErrCameraAccess = errors.New("camera access denied or unavailable")

	// ErrImageDecode means a captured frame could not be decoded.
	ErrImageDecode = errors.New("captured frame could not be decoded")

	// ErrOCRUnavailable means the recognition engine failed or timed out.
	ErrOCRUnavailable = errors.New("ocr engine unavailable")

	// ErrCaptureInFlight means a capture was triggered while another pipeline
	// run was still active. The trigger is ignored, not queued.
	ErrCaptureInFlight = errors.New("capture already in flight")
)

// CapturedFrame is a single raw frame grabbed from a camera stream. It is
// consumed once by the normalizer and discarded.
type CapturedFrame struct {
	Data   []byte // encoded image bytes (JPEG, PNG, ...)
	Width  int
	Height int
}

// NormalizedImage is a card image at the fixed 3.5:2 aspect ratio, bounded
// width, encoded as an opaque JPEG.
type NormalizedImage struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// RecognizedText is the unstructured output of an OCR engine.
type RecognizedText struct {
	Text       string
	Confidence float32
}

// ExtractedFields holds the contact fields pulled out of recognized text.
// Empty strings mean no confident match. The fields only ever pre-fill an
// editable draft; they are never persisted without user confirmation.
type ExtractedFields struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Notes   string `json:"notes"`
}

// Constraints expresses the preferred camera configuration. Providers treat
// the values as hints, not requirements.
type Constraints struct {
	Width      int
	Height     int
	FacingMode string // "environment" prefers a rear camera on mobile
}

// Camera provides capture streams. Acquire fails with an error wrapping
// ErrCameraAccess when the hardware is denied or unsupported.
type Camera interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is one live camera acquisition. Release is idempotent; the session
// controller calls it on every exit path.
type Stream interface {
	GrabFrame(ctx context.Context) (*CapturedFrame, error)
	Release()
}

// Recognizer wraps a text-recognition engine. Recognition may take hundreds
// of milliseconds to seconds; failures wrap ErrOCRUnavailable. Close releases
// any underlying worker resource once the session is over.
type Recognizer interface {
	Recognize(ctx context.Context, img *NormalizedImage) (RecognizedText, error)
	Close() error
}

// StillCamera is a Camera backed by a single pre-captured frame. It serves
// the upload flow, where the browser has already grabbed the frame, and makes
// the controller testable without hardware.
type StillCamera struct {
	Frame *CapturedFrame

	// GrabErr, if set, is returned by GrabFrame instead of the frame.
	GrabErr error
}

// Acquire hands out a stream over the held frame.
func (c *StillCamera) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Frame == nil && c.GrabErr == nil {
		return nil, ErrCameraAccess
	}
	return &stillStream{frame: c.Frame, grabErr: c.GrabErr}, nil
}

type stillStream struct {
	frame    *CapturedFrame
	grabErr  error
	released bool
}

func (s *stillStream) GrabFrame(ctx context.Context) (*CapturedFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.grabErr != nil {
		return nil, s.grabErr
	}
	return s.frame, nil
}

func (s *stillStream) Release() {
	s.released = true
	s.frame = nil
}
