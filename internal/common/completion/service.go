// internal/common/completion/service.go
package completion

import (
	"context"
	"errors"
	"fmt"
)

// Network error codes reported by services.
const (
	CodeTimeout     = "TIMEOUT"
	CodeUnavailable = "UNAVAILABLE"
	CodeBadStatus   = "BAD_STATUS"
	CodeDecode      = "DECODE"
	CodeRequest     = "REQUEST"
)

// Service answers one prompt with one text reply. Implementations never retry.
type Service interface {
	Ask(ctx context.Context, model, prompt string) (string, error)
}

// NetworkError is returned when the round-trip failed, as opposed to a reply
// that arrived but was unusable.
type NetworkError struct {
	Code    string
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("completion %s: %s", e.Code, e.Message)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AsNetworkError reports whether err is a NetworkError and returns it.
func AsNetworkError(err error) (*NetworkError, bool) {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// Func adapts a plain function to Service.
type Func func(ctx context.Context, model, prompt string) (string, error)

func (f Func) Ask(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}
