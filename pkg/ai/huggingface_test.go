package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHuggingFace(t *testing.T, handler http.HandlerFunc) *HuggingFaceProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHuggingFaceProvider(HuggingFaceConfig{APIKey: "hf-key", BaseURL: srv.URL, Model: "gpt2"})
}

func TestHuggingFaceArrayShape(t *testing.T) {
	p := newTestHuggingFace(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gpt2" {
			t.Errorf("expected model in path, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"generated_text": "hello there"}})
	})

	res, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Text != "hello there" {
		t.Fatalf("expected generated text, got %q", res.Text)
	}
}

func TestHuggingFaceFlatShape(t *testing.T) {
	p := newTestHuggingFace(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"generated_text": "flat shape"})
	})

	res, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Text != "flat shape" {
		t.Fatalf("expected generated text, got %q", res.Text)
	}
}

func TestHuggingFaceVendorError(t *testing.T) {
	p := newTestHuggingFace(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model is loading"})
	})

	_, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err == nil || !strings.Contains(err.Error(), "model is loading") {
		t.Fatalf("expected vendor error, got %v", err)
	}
}

func TestHuggingFaceHTTPError(t *testing.T) {
	p := newTestHuggingFace(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := p.Process(context.Background(), "hello", Options{Task: TaskText})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected HTTP status in error, got %v", err)
	}
}

func TestHuggingFaceRejectsNonTextTasks(t *testing.T) {
	p := NewHuggingFaceProvider(HuggingFaceConfig{APIKey: "hf-key"})
	if _, err := p.Process(context.Background(), "hello", Options{Task: TaskImage}); err == nil {
		t.Fatal("expected unsupported task error")
	}
}
