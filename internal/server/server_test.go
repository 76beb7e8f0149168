package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/danielwesterlund/aixo/internal/ratelimit"
	"github.com/danielwesterlund/aixo/pkg/ai"
	"github.com/danielwesterlund/aixo/pkg/usage"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Service == nil {
		svc, err := ai.New(ai.Config{Defaults: cfg.Defaults}, ai.NewLocalProvider())
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		cfg.Service = svc
	}
	srv := httptest.NewServer(New(cfg).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postGenerate(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/generate", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("generate request: %v", err)
	}
	return resp
}

func TestGenerateWithLocalProvider(t *testing.T) {
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}})

	resp := postGenerate(t, srv.URL, `{"prompt":"hello","provider":"local"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(out.Text, "hello") {
		t.Fatalf("expected echoed prompt in response, got %q", out.Text)
	}
}

func TestGenerateRequiresPrompt(t *testing.T) {
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}})

	resp := postGenerate(t, srv.URL, `{"task":"text"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing prompt, got %d", resp.StatusCode)
	}
}

func TestGenerateUnknownProviderYieldsEmptyText(t *testing.T) {
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}})

	resp := postGenerate(t, srv.URL, `{"prompt":"hello","provider":"nope"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("provider failures must not surface as HTTP errors, got %d", resp.StatusCode)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Text != "" {
		t.Fatalf("expected empty text for unknown provider, got %q", out.Text)
	}
}

func TestGenerateRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewFixedWindowLimiter(redis.Addr(), "", "test:generate", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}, Limiter: limiter})

	resp1 := postGenerate(t, srv.URL, `{"prompt":"hello"}`)
	resp1.Body.Close()
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", resp1.StatusCode)
	}
	resp2 := postGenerate(t, srv.URL, `{"prompt":"hello"}`)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
}

func TestStatusListsProviders(t *testing.T) {
	svc, err := ai.New(ai.Config{Defaults: ai.Defaults{Provider: "local", Model: "gpt-4", Temperature: 0.7}},
		ai.NewOpenAIProvider(ai.OpenAIConfig{}),
		ai.NewLocalProvider(),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := newTestServer(t, Config{
		Service:  svc,
		Defaults: ai.Defaults{Provider: "local", Model: "gpt-4", Temperature: 0.7},
	})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		DefaultProvider string          `json:"defaultProvider"`
		Providers       []ai.Descriptor `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.DefaultProvider != "local" {
		t.Fatalf("expected local default, got %q", out.DefaultProvider)
	}
	if len(out.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(out.Providers))
	}
	if out.Providers[0].Key != "openai" || out.Providers[0].Available {
		t.Fatalf("openai without key should list as unavailable, got %+v", out.Providers[0])
	}
	if out.Providers[1].Key != "local" || !out.Providers[1].Available || !out.Providers[1].Default {
		t.Fatalf("local should list as available default, got %+v", out.Providers[1])
	}
}

func TestUsageEndpoint(t *testing.T) {
	recorder := usage.NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = recorder.Append(usage.Record{Provider: "openai", Model: "gpt-4", Tokens: 10, Timestamp: now})
	_ = recorder.Append(usage.Record{Provider: "openai", Model: "gpt-4", Tokens: 15, Timestamp: now.Add(time.Minute)})
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}, Usage: recorder})

	resp, err := http.Get(srv.URL + "/usage")
	if err != nil {
		t.Fatalf("usage request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Last   *usage.Record `json:"last"`
		Totals []usage.Total `json:"totals"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Last == nil || out.Last.Tokens != 15 {
		t.Fatalf("expected last record with 15 tokens, got %+v", out.Last)
	}
	if len(out.Totals) != 1 || out.Totals[0].Tokens != 25 {
		t.Fatalf("expected one total of 25 tokens, got %+v", out.Totals)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGenerateRejectsGet(t *testing.T) {
	srv := newTestServer(t, Config{Defaults: ai.Defaults{Provider: "local"}})
	resp, err := http.Get(srv.URL + "/generate")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
