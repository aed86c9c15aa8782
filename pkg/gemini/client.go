// Package gemini talks to Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/menta2k/object-counter/pkg/types"
)

const (
	// DefaultModel is used when no model name is given
	DefaultModel = "gemini-1.5-flash"
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv = "GEMINI_API_KEY"

	defaultTimeout = 300 * time.Second
)

// Client wraps the Gemini API client
type Client struct {
	client  *genai.Client
	timeout time.Duration
}

// NewClient creates a Gemini client authenticated with apiKey
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	return NewClientWithConfig(ctx, &genai.ClientConfig{APIKey: apiKey})
}

// NewClientWithConfig creates a client from a full SDK configuration, e.g. to
// point it at another base URL. The backend is always the Gemini API.
func NewClientWithConfig(ctx context.Context, cc *genai.ClientConfig) (*Client, error) {
	if cc == nil || cc.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is empty (set %s)", APIKeyEnv)
	}
	cc.Backend = genai.BackendGeminiAPI

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Client{client: client, timeout: defaultTimeout}, nil
}

// SetTimeout changes the timeout applied when the caller's context has no deadline
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Name returns the backend name
func (c *Client) Name() string {
	return "gemini"
}

// SimpleQuery sends the image and prompt and returns the text of the first candidate
func (c *Client) SimpleQuery(ctx context.Context, model, prompt string, img types.ImagePart) (string, error) {
	const op = "gemini.SimpleQuery"

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if model == "" {
		model = DefaultModel
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", classifyError(op, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", types.NewNetworkError(op, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason), false)
		}
		return "", types.NewNetworkError(op, errors.New("no candidates in response"), false)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		reason := resp.Candidates[0].FinishReason
		return "", types.NewNetworkError(op, fmt.Errorf("empty response from gemini (finish reason %q)", reason), false)
	}

	return sb.String(), nil
}

// classifyError marks API status errors by code and transport failures as retryable
func classifyError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return types.NewNetworkError(op, err, types.RetryableStatus(apiErr.Code))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return types.NewNetworkError(op, err, types.RetryableStatus(apiErrPtr.Code))
	}
	if errors.Is(err, context.Canceled) {
		return types.NewNetworkError(op, err, false)
	}
	return types.NewNetworkError(op, err, true)
}
