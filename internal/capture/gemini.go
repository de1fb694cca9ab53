package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks the model for a faithful line-by-line transcription.
// Field assignment stays in Extract so both engines feed the same heuristics.
const transcribePrompt = `You are reading a photographed business card. Transcribe every piece of text
visible on the card, one item per line, top to bottom. Preserve the original
spelling, capitalization, and formatting of phone numbers. Do not label,
interpret, or reorder anything. Return only the transcribed lines.`

// Gemini is a Recognizer backed by the Google Gemini vision API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini-backed recognizer.
func NewGemini(apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Recognize sends the normalized card image for transcription.
func (g *Gemini) Recognize(ctx context.Context, img *NormalizedImage) (RecognizedText, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Normalized images are always JPEG.
	parts := []genai.Part{
		genai.ImageData("jpeg", img.Data),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RecognizedText{}, ctxErr
		}
		return RecognizedText{}, fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return RecognizedText{}, fmt.Errorf("%w: empty response", ErrOCRUnavailable)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(sb.String())
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	return RecognizedText{
		Text:       text,
		Confidence: heuristicConfidence(text),
	}, nil
}

// Close closes the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
