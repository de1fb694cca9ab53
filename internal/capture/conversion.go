package capture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// FrameFromUpload turns an uploaded card scan into a CapturedFrame the
// normalizer can decode. JPEG, PNG, and GIF pass through as-is; HEIC/HEIF
// (phone cameras) and single-page PDF scans are rendered to PNG first.
func FrameFromUpload(data []byte, contentType string) (*CapturedFrame, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "application/pdf" {
		return pdfToFrame(data)
	}
	if isHEICData(data) || isHEICMimeType(mimeType) {
		return heicToFrame(data)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return &CapturedFrame{Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

// pdfToFrame renders the first page of a PDF card scan.
func pdfToFrame(data []byte) (*CapturedFrame, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %v", ErrImageDecode, err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering pdf page: %v", ErrImageDecode, err)
	}
	return encodeFrame(img)
}

// heicToFrame decodes HEIC/HEIF images, which the standard image package
// does not understand.
func heicToFrame(data []byte) (*CapturedFrame, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding heic: %v", ErrImageDecode, err)
	}
	return encodeFrame(img)
}

func encodeFrame(img image.Image) (*CapturedFrame, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	b := img.Bounds()
	return &CapturedFrame{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// isHEICData sniffs the ftyp box brands HEIC containers start with.
func isHEICData(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
