package generation

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

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params Parameters) (string, error) {
	if c.apiKey == "" {
		return "", Fatal(fmt.Errorf("API key not configured"))
	}
	params = params.WithDefaults()

	jsonData, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return "", Fatal(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", Fatal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", Transient(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Fatal(fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Error != nil {
		return "", Fatal(fmt.Errorf("API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", Transient(fmt.Errorf("no completion returned"))
	}
	return parsed.Choices[0].Message.Content, nil
}
