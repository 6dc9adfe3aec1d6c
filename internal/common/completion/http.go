// internal/common/completion/http.go
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPService posts prompts to a GenAI gateway exposing /api/ai/generate.
type HTTPService struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

func NewHTTPService(baseURL, defaultModel string, timeout time.Duration) *HTTPService {
	return &HTTPService{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (s *HTTPService) Ask(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = s.defaultModel
	}

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", &NetworkError{Code: CodeRequest, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/ai/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", &NetworkError{Code: CodeRequest, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		code := CodeUnavailable
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			code = CodeTimeout
		}
		return "", &NetworkError{Code: code, Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &NetworkError{
			Code:    CodeBadStatus,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &NetworkError{Code: CodeDecode, Message: "decode response", Err: err}
	}
	return out.Text, nil
}
