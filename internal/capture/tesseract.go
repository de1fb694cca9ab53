package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is a Recognizer backed by a local tesseract engine through
// gosseract. One client is initialized per session and reused across
// recognitions until Close.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	closed bool
}

// NewTesseract creates a tesseract-backed recognizer. Empty lang defaults to
// English; tessdataDir is optional.
func NewTesseract(lang, tessdataDir string) (*Tesseract, error) {
	if lang == "" {
		lang = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract language: %w", err)
	}
	if tessdataDir != "" {
		if err := client.SetTessdataPrefix(tessdataDir); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting tessdata prefix: %w", err)
		}
	}
	return &Tesseract{client: client}, nil
}

// Recognize runs OCR over the normalized image and returns its plain text
// with a heuristic confidence.
func (t *Tesseract) Recognize(ctx context.Context, img *NormalizedImage) (RecognizedText, error) {
	if err := ctx.Err(); err != nil {
		return RecognizedText{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return RecognizedText{}, fmt.Errorf("recognizer closed: %w", ErrOCRUnavailable)
	}

	if err := t.client.SetImageFromBytes(img.Data); err != nil {
		return RecognizedText{}, fmt.Errorf("%w: setting image: %v", ErrOCRUnavailable, err)
	}
	text, err := t.client.Text()
	if err != nil {
		return RecognizedText{}, fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}

	return RecognizedText{
		Text:       text,
		Confidence: heuristicConfidence(text),
	}, nil
}

// Close releases the underlying tesseract worker. Idempotent.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.client.Close()
}

// heuristicConfidence scores recognized text by how card-like it looks. Each
// contact artifact (email, phone, web address) adds to a small base score.
func heuristicConfidence(text string) float32 {
	score := float32(0.2)
	if emailPattern.MatchString(text) {
		score += 0.25
	}
	if firstPhone(splitLines(text)) != "" {
		score += 0.25
	}
	if websitePattern.MatchString(stripEmails(text)) {
		score += 0.15
	}
	if len(strings.TrimSpace(text)) > 40 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
