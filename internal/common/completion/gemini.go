// internal/common/completion/gemini.go
package completion

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiService calls the Gemini API through the genai SDK.
type GeminiService struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiService(ctx context.Context, apiKey, defaultModel string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiService{client: client, defaultModel: defaultModel}, nil
}

func (s *GeminiService) Ask(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = s.defaultModel
	}

	resp, err := s.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		code := CodeUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		return "", &NetworkError{Code: code, Message: "generate content", Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &NetworkError{Code: CodeDecode, Message: "response has no candidates"}
	}
	return resp.Text(), nil
}
