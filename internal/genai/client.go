package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"fitsched/internal/config"
)

// LMClient generates text from a prompt with one model of the fallback
// chain. Implementations must honor the context deadline.
type LMClient interface {
	Generate(ctx context.Context, model config.ModelRef, prompt string) (string, error)
}

// HTTPClient talks to OpenAI-compatible chat endpoints and local Ollama
// servers, selected per model by its provider field.
type HTTPClient struct {
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPClient builds a client reading the API key from LM_API_KEY.
// Per-call timeouts come from the model config, not the http.Client.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		APIKey:     os.Getenv("LM_API_KEY"),
		HTTPClient: &http.Client{},
	}
}

// Generate implements LMClient.
func (c *HTTPClient) Generate(ctx context.Context, model config.ModelRef, prompt string) (string, error) {
	timeout := model.Timeout
	if timeout <= 0 {
		timeout = config.DefaultCloudModelTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch model.Provider {
	case "ollama":
		return c.generateOllama(ctx, model, prompt)
	default:
		return c.generateOpenAI(ctx, model, prompt)
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (c *HTTPClient) generateOllama(ctx context.Context, model config.ModelRef, prompt string) (string, error) {
	baseURL := model.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	body, err := json.Marshal(ollamaRequest{Model: model.Name, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	data, err := c.post(ctx, strings.TrimRight(baseURL, "/")+"/api/generate", body, false)
	if err != nil {
		return "", err
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama model %s: %s", model.Name, parsed.Error)
	}
	return parsed.Response, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) generateOpenAI(ctx context.Context, model config.ModelRef, prompt string) (string, error) {
	baseURL := model.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	body, err := json.Marshal(chatRequest{
		Model:    model.Name,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	data, err := c.post(ctx, strings.TrimRight(baseURL, "/")+"/chat/completions", body, true)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model %s: %s", model.Name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", model.Name)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *HTTPClient) post(ctx context.Context, url string, body []byte, authed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// ScriptedClient returns canned responses per model name; used by tests and
// offline operation. Safe for concurrent use.
type ScriptedClient struct {
	// Responses maps model name to response text; an Err entry wins.
	Responses map[string]string
	Errs      map[string]error

	mu    sync.Mutex
	calls []string
}

// CallLog lists the model names invoked so far.
func (c *ScriptedClient) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Generate implements LMClient.
func (c *ScriptedClient) Generate(ctx context.Context, model config.ModelRef, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.calls = append(c.calls, model.Name)
	c.mu.Unlock()
	if err, ok := c.Errs[model.Name]; ok {
		return "", err
	}
	if resp, ok := c.Responses[model.Name]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no scripted response for model %s", model.Name)
}
