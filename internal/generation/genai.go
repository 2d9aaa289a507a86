package generation

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GenAIClient calls Gemini through the Google GenAI SDK.
type GenAIClient struct {
	client *genai.Client
	model  string
}

func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

func (c *GenAIClient) Model() string {
	return c.model
}

func (c *GenAIClient) Generate(ctx context.Context, prompt string, params Parameters) (string, error) {
	params = params.WithDefaults()
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(params.Temperature)),
		MaxOutputTokens:  int32(params.MaxTokens),
		ResponseMIMEType: "application/json",
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", Transient(fmt.Errorf("GenAI returned no text"))
	}
	return text, nil
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, fmt.Errorf("GenAI generate failed: %w", err))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(apiErrPtr.Code, fmt.Errorf("GenAI generate failed: %w", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Transport errors surface without a status code.
	return Transient(fmt.Errorf("GenAI generate failed: %w", err))
}
