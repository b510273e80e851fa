package gemini

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// Dialer holds everything needed to build a Client except the credential,
// which is supplied per batch.
type Dialer struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Limiter    *rate.Limiter
}

func (d Dialer) Dial(ctx context.Context, apiKey string) (*Client, error) {
	return New(ctx, Options{
		APIKey:     apiKey,
		BaseURL:    d.BaseURL,
		APIVersion: d.APIVersion,
		HTTPClient: d.HTTPClient,
		Logger:     d.Logger,
		Limiter:    d.Limiter,
	})
}

// NewLimiter returns a limiter allowing rpm calls per minute, or nil when rpm <= 0.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}
