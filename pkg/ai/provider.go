package ai

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Provider is the capability implemented by every generation backend.
// A provider translates one normalized prompt/options pair into a single
// vendor HTTP call and extracts a plain text or URL result.
type Provider interface {
	// Key returns the stable lowercase identifier used for registry lookup
	// and in stored usage records. It must never change between releases.
	Key() string
	// Name returns the human-readable label for status displays.
	Name() string
	// Available reports whether the required configuration is present.
	// It must not perform network I/O.
	Available() bool
	// Process performs exactly one task-appropriate network call. A failed
	// call returns a zero Result and a diagnostic error; providers do not
	// retry.
	Process(ctx context.Context, prompt string, opts Options) (Result, error)
}

// Result carries the extracted text or URL output of a provider call plus
// the decoded raw response body used for token accounting.
type Result struct {
	Text string
	Raw  map[string]any
}

// Descriptor describes a registered provider for status reporting.
type Descriptor struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Default   bool   `json:"default"`
}

// newHTTPClient builds a client with a short connect timeout and a longer
// total timeout so a slow vendor cannot hang a page render.
func newHTTPClient(connect, total time.Duration) *http.Client {
	return &http.Client{
		Timeout: total,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
		},
	}
}
