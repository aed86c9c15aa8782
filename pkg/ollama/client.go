package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/object-counter/pkg/types"
)

// DefaultURL is the Ollama server used when none is configured
const DefaultURL = "http://localhost:11434"

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	timeout time.Duration
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}

	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Create client with the specified URL, ignoring environment
	client := api.NewClient(baseURL, http.DefaultClient)

	return &Client{client: client, timeout: 300 * time.Second}, nil
}

// SetTimeout changes the timeout applied when the caller's context has no deadline
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Name returns the backend name
func (c *Client) Name() string {
	return "ollama"
}

// SimpleQuery performs a chat request with an image and returns the reply text
func (c *Client) SimpleQuery(ctx context.Context, model, prompt string, img types.ImagePart) (string, error) {
	const op = "ollama.SimpleQuery"

	// Add timeout if context doesn't have one (local vision models can be slow on CPU)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	options := map[string]any{}

	// Detection replies are more stable with low temperature
	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "qwen") || strings.Contains(modelLower, "llava") {
		options["temperature"] = 0.1
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(img.Data)},
			},
		},
		Stream:  &streamFalse,
		Options: options,
	}

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", classifyError(op, err)
	}

	if responseContent == "" {
		return "", types.NewNetworkError(op, errors.New("empty response from ollama"), false)
	}

	return responseContent, nil
}

func classifyError(op string, err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		return types.NewNetworkError(op, fmt.Errorf("ollama chat error: %w", err), types.RetryableStatus(se.StatusCode))
	}
	if errors.Is(err, context.Canceled) {
		return types.NewNetworkError(op, err, false)
	}
	return types.NewNetworkError(op, fmt.Errorf("ollama chat error: %w", err), true)
}
