package ai

import (
	"context"
	"fmt"
)

// LocalProvider is a stub backend that echoes the prompt. It needs no
// configuration and never fails, which makes it useful for wiring checks
// and for environments without outbound network access.
type LocalProvider struct{}

// NewLocalProvider builds the stub provider.
func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (p *LocalProvider) Key() string { return "local" }

func (p *LocalProvider) Name() string { return "Local AI (Placeholder)" }

func (p *LocalProvider) Available() bool { return true }

// Process returns a deterministic placeholder response built from the
// prompt.
func (p *LocalProvider) Process(_ context.Context, prompt string, _ Options) (Result, error) {
	return Result{Text: fmt.Sprintf("[local] response for: %q", prompt)}, nil
}
