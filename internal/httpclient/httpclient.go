// Package httpclient builds the one *http.Client shared by the Telegram and
// Gemini clients.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

const DefaultUserAgent = "imaginova-studio/1.0"

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	// UserAgent is set on requests that carry none. Defaults to DefaultUserAgent.
	UserAgent string
}

func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, dialNetwork(network, opts.PreferIPv4), addr)
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
		// image generation can think for a long time before the first byte
		ResponseHeaderTimeout: 150 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: transport, userAgent: userAgent},
	}
}

func dialNetwork(network string, preferIPv4 bool) string {
	if preferIPv4 && (network == "tcp" || network == "tcp6") {
		return "tcp4"
	}
	return network
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
