package openrouter

import (
	"errors"
	"fmt"
)

// ErrNoChoices is wrapped by UpstreamError when a completion carries no choices.
var ErrNoChoices = errors.New("no response from AI model")

// ConfigurationError reports a missing or unusable upstream setting.
// It is returned before any network call is made.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// UpstreamError reports an unusable reply from the completions endpoint.
// StatusCode and Body preserve what upstream sent.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("OpenRouter API error: %d %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
