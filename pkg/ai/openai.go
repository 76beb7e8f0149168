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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

const maxResponseBytes = 4 << 20

// Models that accept the max_tokens/temperature sampling parameters. For
// any other model the parameters are omitted from the payload instead of
// failing the call.
var openAISamplingModels = []string{"gpt-3.5-turbo", "gpt-4", "davinci"}

// OpenAIConfig configures the OpenAI provider. Zero fields fall back to the
// stock endpoint and models.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	TTSModel   string
	Voice      string
}

// OpenAIProvider serves text, image, and speech tasks against the OpenAI
// REST API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	ttsModel   string
	voice      string
	httpClient *http.Client
}

// NewOpenAIProvider builds the provider from explicit configuration.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	imageModel := strings.TrimSpace(cfg.ImageModel)
	if imageModel == "" {
		imageModel = "dall-e-2"
	}
	ttsModel := strings.TrimSpace(cfg.TTSModel)
	if ttsModel == "" {
		ttsModel = "tts-1"
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = "nova"
	}
	return &OpenAIProvider{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		model:      model,
		imageModel: imageModel,
		ttsModel:   ttsModel,
		voice:      voice,
		httpClient: newHTTPClient(15*time.Second, 30*time.Second),
	}
}

func (p *OpenAIProvider) Key() string { return "openai" }

func (p *OpenAIProvider) Name() string { return "OpenAI API" }

// Available reports whether an API key is configured. No network I/O.
func (p *OpenAIProvider) Available() bool { return p.apiKey != "" }

// Process routes the request by task.
func (p *OpenAIProvider) Process(ctx context.Context, prompt string, opts Options) (Result, error) {
	if p.apiKey == "" {
		return Result{}, errors.New("missing OpenAI API key")
	}
	switch NormalizeTask(opts.Task) {
	case TaskImage:
		return p.processImage(ctx, prompt, opts)
	case TaskTTS:
		return p.processTTS(ctx, prompt, opts)
	default:
		return p.processText(ctx, prompt, opts)
	}
}

func (p *OpenAIProvider) processText(ctx context.Context, prompt string, opts Options) (Result, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = p.model
	}
	reqBody := oaiChatRequest{
		Model: model,
		Messages: []oaiMessage{
			{Role: "system", Content: "You are a helpful assistant."},
			{Role: "user", Content: prompt},
		},
	}
	if openAISamplingAllowed(model) {
		maxTokens := opts.MaxTokens
		if maxTokens <= 0 {
			maxTokens = fallbackMaxTokens
		}
		temperature := fallbackTemperature
		if opts.Temperature != nil {
			temperature = *opts.Temperature
		}
		reqBody.MaxTokens = &maxTokens
		reqBody.Temperature = &temperature
	}

	data, err := p.postJSON(ctx, "/chat/completions", reqBody)
	if err != nil {
		return Result{}, err
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	var chatResp oaiChatResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return Result{}, fmt.Errorf("invalid JSON response from OpenAI: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return Result{}, errors.New("no completion message found in response")
	}
	return Result{Text: chatResp.Choices[0].Message.Content, Raw: raw}, nil
}

func (p *OpenAIProvider) processImage(ctx context.Context, prompt string, opts Options) (Result, error) {
	n := opts.N
	if n < 1 {
		n = fallbackImageCount
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = fallbackImageSize
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = p.imageModel
	}
	reqBody := oaiImageRequest{
		Prompt: prompt,
		N:      n,
		Size:   size,
		Model:  model,
	}

	data, err := p.postJSON(ctx, "/images/generations", reqBody)
	if err != nil {
		var vendorErr *openAIError
		if errors.As(err, &vendorErr) && strings.Contains(strings.ToLower(vendorErr.Message), "size") {
			return Result{}, errors.New("image generation error: the requested size is not supported by the selected model, adjust the size parameter")
		}
		return Result{}, err
	}
	var imgResp oaiImageResponse
	if err := json.Unmarshal(data, &imgResp); err != nil {
		return Result{}, fmt.Errorf("invalid JSON response from OpenAI: %w", err)
	}
	urls := make([]string, 0, len(imgResp.Data))
	for _, item := range imgResp.Data {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	if len(urls) == 0 {
		return Result{}, errors.New("no image data found in response")
	}
	return Result{Text: strings.Join(urls, ", ")}, nil
}

func (p *OpenAIProvider) processTTS(ctx context.Context, prompt string, opts Options) (Result, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = p.ttsModel
	}
	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = p.voice
	}
	reqBody := oaiSpeechRequest{
		Model: model,
		Input: prompt,
		Voice: voice,
	}

	data, err := p.postJSON(ctx, "/audio/speech", reqBody)
	if err != nil {
		return Result{}, err
	}
	var speechResp oaiSpeechResponse
	if err := json.Unmarshal(data, &speechResp); err != nil {
		return Result{}, fmt.Errorf("invalid JSON response from OpenAI: %w", err)
	}
	if speechResp.AudioURL == "" {
		return Result{}, errors.New("no audio URL found in TTS response")
	}
	return Result{Text: speechResp.AudioURL}, nil
}

// postJSON performs one POST and returns the response body after status and
// vendor-error checks. Non-200 responses surface the status code and raw
// body verbatim; vendor error payloads surface as *openAIError.
func (p *OpenAIProvider) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("OpenAI response read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var envelope oaiErrorEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return nil, &openAIError{Message: envelope.Error.Message}
	}
	return data, nil
}

func openAISamplingAllowed(model string) bool {
	for _, allowed := range openAISamplingModels {
		if strings.EqualFold(model, allowed) {
			return true
		}
	}
	return false
}

// openAIError is a vendor-reported error payload returned with HTTP 200.
type openAIError struct {
	Message string
}

func (e *openAIError) Error() string {
	return "OpenAI error: " + e.Message
}

// OpenAI request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiImageRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
	Model  string `json:"model,omitempty"`
}

type oaiImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type oaiSpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

type oaiSpeechResponse struct {
	AudioURL string `json:"audio_url"`
}

type oaiErrorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
