package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	return p, srv
}

func TestOpenAITextIncludesSamplingForAllowedModel(t *testing.T) {
	var captured map[string]any
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
		})
	})

	res, err := p.Process(context.Background(), "hello", Options{Task: TaskText, Model: "GPT-4"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Text != "hi" {
		t.Fatalf("expected completion text, got %q", res.Text)
	}
	if _, ok := captured["max_tokens"]; !ok {
		t.Fatalf("expected max_tokens in payload for allow-listed model, got %v", captured)
	}
	if _, ok := captured["temperature"]; !ok {
		t.Fatalf("expected temperature in payload for allow-listed model, got %v", captured)
	}
}

func TestOpenAITextOmitsSamplingForOtherModels(t *testing.T) {
	var captured map[string]any
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
		})
	})

	if _, err := p.Process(context.Background(), "hello", Options{Task: TaskText, Model: "o4-mini"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, ok := captured["max_tokens"]; ok {
		t.Fatalf("did not expect max_tokens for model outside the allow-list, got %v", captured)
	}
	if _, ok := captured["temperature"]; ok {
		t.Fatalf("did not expect temperature for model outside the allow-list, got %v", captured)
	}
}

func TestOpenAITextCarriesRawUsage(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	})

	res, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := tokensFromRaw(res.Raw); got != 42 {
		t.Fatalf("expected 42 tokens from raw response, got %d", got)
	}
}

func TestOpenAIHTTPErrorIncludesStatus(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})

	_, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status code in error, got %q", err)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("expected raw body in error, got %q", err)
	}
}

func TestOpenAIVendorErrorPayload(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "quota exceeded", "type": "insufficient_quota"},
		})
	})

	_, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected vendor error message, got %v", err)
	}
}

func TestOpenAIImageJoinsURLs(t *testing.T) {
	var captured map[string]any
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"url": "https://img.example/1.png"},
				{"url": "https://img.example/2.png"},
			},
		})
	})

	res, err := p.Process(context.Background(), "a skyline", Options{Task: TaskImage, N: 2, Size: "512x512"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	want := "https://img.example/1.png, https://img.example/2.png"
	if res.Text != want {
		t.Fatalf("expected joined URLs %q, got %q", want, res.Text)
	}
	if captured["n"] != float64(2) || captured["size"] != "512x512" {
		t.Fatalf("unexpected image payload: %v", captured)
	}
}

func TestOpenAIImageSizeErrorIsRewritten(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid Size for this model"},
		})
	})

	_, err := p.Process(context.Background(), "a skyline", Options{Task: TaskImage})
	if err == nil || !strings.Contains(err.Error(), "not supported by the selected model") {
		t.Fatalf("expected rewritten size error, got %v", err)
	}
}

func TestOpenAITTSExtractsAudioURL(t *testing.T) {
	var captured map[string]any
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"audio_url": "https://audio.example/out.mp3"})
	})

	res, err := p.Process(context.Background(), "hello world", Options{Task: "text-to-speech", Voice: "echo"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Text != "https://audio.example/out.mp3" {
		t.Fatalf("expected audio URL, got %q", res.Text)
	}
	if captured["voice"] != "echo" || captured["input"] != "hello world" {
		t.Fatalf("unexpected tts payload: %v", captured)
	}
}

func TestOpenAIUnavailableWithoutKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	if p.Available() {
		t.Fatal("provider without api key should not be available")
	}
	if _, err := p.Process(context.Background(), "hello", Options{}); err == nil {
		t.Fatal("expected missing key error")
	}
}
