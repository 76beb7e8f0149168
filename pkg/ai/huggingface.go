package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co/models"

// HuggingFaceConfig configures the HuggingFace inference provider.
type HuggingFaceConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// HuggingFaceProvider serves text generation against the HuggingFace
// Inference API. Image and speech tasks are not supported.
type HuggingFaceProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHuggingFaceProvider builds the provider from explicit configuration.
func NewHuggingFaceProvider(cfg HuggingFaceConfig) *HuggingFaceProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt2"
	}
	return &HuggingFaceProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		model:   model,
		httpClient: newHTTPClient(8*time.Second, 15*time.Second),
	}
}

func (p *HuggingFaceProvider) Key() string { return "huggingface" }

func (p *HuggingFaceProvider) Name() string { return "HuggingFace API" }

// Available reports whether an API key is configured. No network I/O.
func (p *HuggingFaceProvider) Available() bool { return p.apiKey != "" }

// Process runs text generation. The generated text is probed at the two
// response shapes the inference API is known to return: a single-element
// array and a flat object.
func (p *HuggingFaceProvider) Process(ctx context.Context, prompt string, opts Options) (Result, error) {
	if p.apiKey == "" {
		return Result{}, errors.New("missing HuggingFace API key")
	}
	if task := NormalizeTask(opts.Task); task != TaskText {
		return Result{}, fmt.Errorf("task %q is not supported by HuggingFace", task)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = p.model
	}

	body, err := json.Marshal(hfRequest{Inputs: prompt})
	if err != nil {
		return Result{}, err
	}
	url := p.baseURL + "/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("HuggingFace request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("HuggingFace response read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("HuggingFace API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	// Array shape first, then the flat object shape.
	var list []hfGenerated
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) > 0 && list[0].GeneratedText != "" {
			return Result{Text: list[0].GeneratedText}, nil
		}
		return Result{}, errors.New("no generated text found in HuggingFace response")
	}
	var single hfGenerated
	if err := json.Unmarshal(data, &single); err != nil {
		return Result{}, fmt.Errorf("invalid JSON response from HuggingFace: %w", err)
	}
	if single.Error != "" {
		return Result{}, fmt.Errorf("HuggingFace error: %s", single.Error)
	}
	if single.GeneratedText == "" {
		return Result{}, errors.New("no generated text found in HuggingFace response")
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	return Result{Text: single.GeneratedText, Raw: raw}, nil
}

type hfRequest struct {
	Inputs string `json:"inputs"`
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error"`
}
