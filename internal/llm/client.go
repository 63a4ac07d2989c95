package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JohnHCunningham/housing-website/internal/metrics"
)

// Mode selects where a Client sends conversation requests.
type Mode string

const (
	// ModeProxy posts {messages, system} to the proxy endpoint, which holds the credential.
	ModeProxy Mode = "proxy"
	// ModeDirect posts to the upstream API with an inline credential. Debug only.
	ModeDirect Mode = "direct"
)

const (
	DefaultUpstreamURL      = "https://api.anthropic.com/v1/messages"
	DefaultModel            = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens        = 1024
	DefaultAnthropicVersion = "2023-06-01"
)

// Options configures a Client.
type Options struct {
	// ProxyURL is the proxy endpoint used when APIKey is empty.
	ProxyURL string
	// APIKey switches the client to direct mode when set.
	APIKey      string
	UpstreamURL string
	Model       string
	MaxTokens   int
	// Timeout bounds a single request; zero means no timeout.
	Timeout time.Duration
}

// Client sends a conversation to the chat API and returns the assistant reply.
// The mode is fixed for the lifetime of the client.
type Client struct {
	http      *resty.Client
	mode      Mode
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
}

// NewClient builds a Client; the presence of opts.APIKey selects direct mode.
func NewClient(opts Options) *Client {
	c := &Client{
		http: resty.New().
			SetHeader("Content-Type", "application/json").
			SetTimeout(opts.Timeout),
		mode:     ModeProxy,
		endpoint: opts.ProxyURL,
	}
	if opts.APIKey != "" {
		c.mode = ModeDirect
		c.apiKey = opts.APIKey
		c.endpoint = firstNonEmpty(opts.UpstreamURL, DefaultUpstreamURL)
		c.model = firstNonEmpty(opts.Model, DefaultModel)
		c.maxTokens = opts.MaxTokens
		if c.maxTokens <= 0 {
			c.maxTokens = DefaultMaxTokens
		}
	}
	return c
}

// Mode reports which endpoint the client talks to.
func (c *Client) Mode() Mode { return c.mode }

// Complete sends the system context and history and returns the first text block of the reply.
func (c *Client) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("llm: no endpoint configured")
	}
	raw, err := encodeMessages(messages)
	if err != nil {
		return "", err
	}
	body := chatRequest{Messages: raw}
	if system != "" {
		if body.System, err = json.Marshal(system); err != nil {
			return "", fmt.Errorf("llm: encode system: %w", err)
		}
	}

	req := c.http.R().SetContext(ctx)
	if c.mode == ModeDirect {
		body.Model = c.model
		body.MaxTokens = c.maxTokens
		req.SetHeader("x-api-key", c.apiKey).
			SetHeader("anthropic-version", DefaultAnthropicVersion)
	}

	start := time.Now()
	resp, err := req.SetBody(body).Post(c.endpoint)
	metrics.UpstreamLatencySeconds.WithLabelValues(string(c.mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("llm %s request: %w", c.mode, err)
	}
	if !resp.IsSuccess() {
		return "", &APIError{Status: resp.StatusCode(), Message: ErrorMessage(resp.Body())}
	}
	return ExtractText(resp.Body())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
