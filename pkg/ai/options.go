package ai

import "strings"

// Task categories. NormalizeTask folds the long text-to-speech alias into
// TaskTTS before dispatch.
const (
	TaskText  = "text"
	TaskImage = "image"
	TaskTTS   = "tts"
)

// Hard-coded fallbacks used when neither the request nor the configured
// defaults supply a value.
const (
	fallbackTemperature = 0.7
	fallbackMaxTokens   = 256
	fallbackImageCount  = 1
	fallbackImageSize   = "1024x1024"
)

// Options carries per-request settings. Zero values mean "use the
// configured default"; unrecognized inbound fields are ignored on decode.
type Options struct {
	Task     string `json:"task"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// text
	Temperature *float64       `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Metadata    map[string]any `json:"metadata"`

	// image
	N    int    `json:"n"`
	Size string `json:"size"`

	// tts
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

// NormalizeTask lowercases and trims the task name. Empty input means text.
func NormalizeTask(task string) string {
	task = strings.ToLower(strings.TrimSpace(task))
	switch task {
	case "":
		return TaskText
	case "text-to-speech":
		return TaskTTS
	}
	return task
}

// Defaults holds configured fallback values merged into request options
// before dispatch. It is passed explicitly at construction instead of being
// looked up from ambient settings.
type Defaults struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	ImageModel  string
	TTSModel    string
	Voice       string
	Language    string
}
