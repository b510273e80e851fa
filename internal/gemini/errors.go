package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	ErrSafetyBlocked      = errors.New("generation blocked by safety filter")
	ErrGenerationStopped  = errors.New("generation stopped")
	ErrNoImageProduced    = errors.New("no image generated")
	errMissingMainImage   = errors.New("main image is empty")
	errMissingModelClient = errors.New("gemini models client is nil")
)

// StoppedError reports a finish reason other than normal completion.
type StoppedError struct {
	Reason string
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("generation stopped: FINISH_REASON_%s", e.Reason)
}

func (e *StoppedError) Is(target error) bool {
	if target == ErrGenerationStopped {
		return true
	}
	return target == ErrSafetyBlocked && isSafetyReason(e.Reason)
}

// NoImageError is returned when the model answered with text only.
type NoImageError struct {
	Excerpt string
}

func (e *NoImageError) Error() string {
	return fmt.Sprintf("model response: %s...", e.Excerpt)
}

func (e *NoImageError) Is(target error) bool {
	return target == ErrNoImageProduced
}

// IsTransient reports rate-limit and service-unavailable failures, the only
// ones worth waiting out.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable {
			return true
		}
		if apiErr.Status == "RESOURCE_EXHAUSTED" || apiErr.Status == "UNAVAILABLE" {
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// IsQuota reports errors whose text points at an exhausted quota.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func isSafetyReason(reason string) bool {
	switch reason {
	case string(genai.FinishReasonSafety), string(genai.FinishReasonImageSafety):
		return true
	}
	return false
}
