package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danielwesterlund/aixo/pkg/usage"
)

const fallbackProviderKey = "openai"

// MediaMirror re-hosts generated media URLs onto stable storage. Optional;
// when absent, vendor URLs are returned as-is.
type MediaMirror interface {
	MirrorURLs(ctx context.Context, urls []string, task string) []string
}

// Config wires the dispatch service. Usage and Mirror are optional.
type Config struct {
	Defaults Defaults
	Usage    usage.Recorder
	Mirror   MediaMirror
	Logger   *slog.Logger
	Debug    bool
}

// Service resolves a provider per request, merges configured defaults into
// the options, invokes the provider, and performs best-effort usage
// accounting. It is the only component that logs provider failures; the
// caller always receives a plain string, empty on any failure, so an
// embedding template can never be broken by a backend problem.
type Service struct {
	providers map[string]Provider
	order     []string
	defaults  Defaults
	usage     usage.Recorder
	mirror    MediaMirror
	logger    *slog.Logger
	debug     bool
}

// New builds the service and registers the given providers. A duplicate
// provider key is a registration error.
func New(cfg Config, providers ...Provider) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		defaults:  cfg.Defaults,
		usage:     cfg.Usage,
		mirror:    cfg.Mirror,
		logger:    logger,
		debug:     cfg.Debug,
	}
	for _, p := range providers {
		if err := s.register(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider must not be nil")
	}
	key := strings.ToLower(strings.TrimSpace(p.Key()))
	if key == "" {
		return fmt.Errorf("provider key required")
	}
	if _, exists := s.providers[key]; exists {
		return fmt.Errorf("provider %q already registered", key)
	}
	s.providers[key] = p
	s.order = append(s.order, key)
	return nil
}

// Provider returns the registered provider for a key, case-insensitively.
func (s *Service) Provider(key string) (Provider, bool) {
	p, ok := s.providers[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// Providers lists registered providers in registration order for status
// reporting.
func (s *Service) Providers() []Descriptor {
	defaultKey := s.resolveKey("")
	out := make([]Descriptor, 0, len(s.order))
	for _, key := range s.order {
		p := s.providers[key]
		out = append(out, Descriptor{
			Key:       key,
			Name:      p.Name(),
			Available: p.Available(),
			Default:   key == defaultKey,
		})
	}
	return out
}

// Process runs one generation request. It never returns an error: every
// failure mode is logged and surfaces as an empty string.
func (s *Service) Process(ctx context.Context, prompt string, opts Options) string {
	if strings.TrimSpace(prompt) == "" {
		return ""
	}

	key := s.resolveKey(opts.Provider)
	p, ok := s.providers[key]
	if !ok {
		s.logger.Error("provider not installed", "provider", key)
		return ""
	}
	if !p.Available() {
		s.logger.Error("provider not configured", "provider", key)
		return ""
	}

	opts.Task = NormalizeTask(opts.Task)
	if opts.Task == TaskText {
		s.mergeTextDefaults(&opts)
	}

	if s.debug {
		s.logger.Info("dispatching request", "provider", key, "task", opts.Task, "model", opts.Model, "prompt", prompt)
	}

	res, err := s.callProvider(ctx, p, prompt, opts)
	switch {
	case err != nil:
		s.logger.Error("provider call failed", "provider", key, "task", opts.Task, "err", err)
	case res.Text == "":
		s.logger.Warn("provider returned an empty result without an error", "provider", key, "task", opts.Task)
	case s.debug:
		s.logger.Info("provider response", "provider", key, "task", opts.Task, "result", res.Text)
	}

	if opts.Task == TaskText {
		s.recordUsage(key, opts, res.Raw)
	}

	if s.mirror != nil && res.Text != "" && (opts.Task == TaskImage || opts.Task == TaskTTS) {
		res.Text = s.mirrorResult(ctx, res.Text, opts.Task)
	}

	return res.Text
}

// callProvider guards the provider boundary: an unexpected panic inside a
// provider is converted to an error so the never-raise contract holds.
func (s *Service) callProvider(ctx context.Context, p Provider, prompt string, opts Options) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Process(ctx, prompt, opts)
}

func (s *Service) resolveKey(requested string) string {
	key := strings.ToLower(strings.TrimSpace(requested))
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(s.defaults.Provider))
	}
	if key == "" {
		key = fallbackProviderKey
	}
	return key
}

func (s *Service) mergeTextDefaults(opts *Options) {
	if opts.Model == "" {
		opts.Model = s.defaults.Model
	}
	if opts.Temperature == nil {
		temperature := s.defaults.Temperature
		if temperature == 0 {
			temperature = fallbackTemperature
		}
		opts.Temperature = &temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = s.defaults.MaxTokens
	}
}

// recordUsage appends a usage record when the provider's raw response
// carries a token count. Persistence failures are logged and swallowed:
// accounting must never fail the caller.
func (s *Service) recordUsage(providerKey string, opts Options, raw map[string]any) {
	if s.usage == nil {
		return
	}
	tokens := tokensFromRaw(raw)
	if tokens <= 0 {
		return
	}
	model := opts.Model
	if model == "" {
		model = "unknown"
	}
	rec := usage.Record{
		Provider:  providerKey,
		Model:     model,
		Tokens:    tokens,
		Timestamp: time.Now().UTC(),
		Metadata:  opts.Metadata,
	}
	if err := s.usage.Append(rec); err != nil {
		s.logger.Warn("usage record append failed", "provider", providerKey, "err", err)
	}
}

// tokensFromRaw probes the two response locations a token count is known
// to appear at: the nested chat-completions usage object and a flat
// token_count field.
func tokensFromRaw(raw map[string]any) int {
	if raw == nil {
		return 0
	}
	if usageObj, ok := raw["usage"].(map[string]any); ok {
		if n := intFromJSON(usageObj["total_tokens"]); n > 0 {
			return n
		}
	}
	return intFromJSON(raw["token_count"])
}

func intFromJSON(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func (s *Service) mirrorResult(ctx context.Context, joined, task string) string {
	urls := strings.Split(joined, ", ")
	mirrored := s.mirror.MirrorURLs(ctx, urls, task)
	if len(mirrored) != len(urls) {
		return joined
	}
	return strings.Join(mirrored, ", ")
}
