package studio

import (
	"errors"

	"imaginova-studio/internal/gemini"
	"imaginova-studio/internal/prompt"
)

var (
	ErrBatchExhausted = errors.New("every item of the batch failed")
	ErrMissingInput   = errors.New("missing input")
)

const (
	quotaMessage   = "API quota exceeded. Your free tier limit has been reached. Please wait 24 hours or upgrade your API key at aistudio.google.com"
	genericMessage = "Generation failed. Please try again."
)

// ExhaustedError is returned when no item of a batch produced an image.
// LastErr is the failure of the last abandoned item.
type ExhaustedError struct {
	Flow    prompt.Flow
	LastErr error
}

func (e *ExhaustedError) Error() string {
	switch e.Flow {
	case prompt.FlowMagic:
		return "Failed to generate magic portfolio. Please try again later."
	case prompt.FlowFounders:
		return "Failed to generate founders portfolio. Please try again later."
	default:
		return "Failed to generate images. Please check your API quota or try a different photo."
	}
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrBatchExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// InputError names a precondition the caller did not meet.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Is(target error) bool { return target == ErrMissingInput }

// UserMessage turns a batch error into text fit for an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.LastErr != nil && gemini.IsQuota(exhausted.LastErr) {
			return quotaMessage
		}
		return exhausted.Error()
	}
	if gemini.IsQuota(err) {
		return quotaMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return genericMessage
}
