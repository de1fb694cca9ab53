package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// DefaultRatio is the 3.5:2 business-card aspect ratio.
	DefaultRatio = 1.75

	// DefaultWidth bounds the normalized image width in pixels.
	DefaultWidth = 1280

	// jpegQuality is the lossy quality factor for normalized output.
	jpegQuality = 90
)

// Normalizer converts raw captured frames into fixed-aspect-ratio, bounded
// resolution JPEGs suitable for storage and OCR.
type Normalizer struct {
	ratio float64
	width int
}

// NewNormalizer creates a Normalizer. Non-positive arguments fall back to the
// business-card defaults.
func NewNormalizer(ratio float64, width int) *Normalizer {
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return &Normalizer{ratio: ratio, width: width}
}

// Normalize decodes the frame, scales and center-crops it to the target
// aspect ratio, composites it over an opaque white background, and re-encodes
// it as JPEG. It has no side effects beyond the transform.
func (n *Normalizer) Normalize(frame *CapturedFrame) (*NormalizedImage, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame: %w", ErrImageDecode)
	}

	src, err := imaging.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", ErrImageDecode)
	}

	targetWidth := n.width
	targetHeight := int(math.Round(float64(targetWidth) / n.ratio))

	// Fill scales to cover the target box and center-crops the overflow:
	// wider-than-target frames lose equal slices left and right, taller
	// frames lose equal slices top and bottom.
	fitted := imaging.Fill(src, targetWidth, targetHeight, imaging.Center, imaging.Lanczos)

	// Composite over white so no transparency survives JPEG encoding.
	canvas := imaging.New(targetWidth, targetHeight, color.White)
	canvas = imaging.Overlay(canvas, fitted, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encoding normalized image: %w", err)
	}

	return &NormalizedImage{
		Data:        buf.Bytes(),
		Width:       targetWidth,
		Height:      targetHeight,
		ContentType: "image/jpeg",
	}, nil
}
