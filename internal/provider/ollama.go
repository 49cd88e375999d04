package provider

import (
	"net/http"
	"os"
	"strings"
)

// Ollama targets Ollama's OpenAI-compatible endpoint. The wire format is
// inherited from OpenAI; only the name, default URL, and optional
// authentication differ.
type Ollama struct {
	OpenAI
}

func (o *Ollama) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint against a local
// Ollama by default.
func (o *Ollama) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return o.OpenAI.BuildURL(baseURL)
}

// SetHeaders adds bearer authentication only when a key is present;
// local Ollama needs none. An empty apiKey falls back to OLLAMA_API_KEY.
func (o *Ollama) SetHeaders(req *http.Request, apiKey string) {
	if apiKey == "" {
		apiKey = os.Getenv("OLLAMA_API_KEY")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// BuildModelsURL constructs the model listing endpoint, which Ollama
// serves in its OpenAI compatibility layer.
func (o *Ollama) BuildModelsURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return strings.TrimSuffix(baseURL, "/") + "/models"
}
