package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JohnHCunningham/housing-website/internal/metrics"
)

// Upstream forwards proxy requests to the chat API with the server-held credential.
type Upstream struct {
	http      *resty.Client
	url       string
	apiKey    string
	model     string
	maxTokens int
}

// NewUpstream constructs an Upstream. An empty apiKey leaves it unconfigured.
func NewUpstream(url, apiKey, model string, maxTokens int) *Upstream {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Upstream{
		http:      resty.New().SetHeader("Content-Type", "application/json"),
		url:       firstNonEmpty(url, DefaultUpstreamURL),
		apiKey:    apiKey,
		model:     firstNonEmpty(model, DefaultModel),
		maxTokens: maxTokens,
	}
}

// Configured reports whether a credential is present.
func (u *Upstream) Configured() bool { return u.apiKey != "" }

// Forward posts system and messages verbatim and returns the upstream status
// and raw body. system may be a string or an array of content blocks.
func (u *Upstream) Forward(ctx context.Context, system, messages json.RawMessage) (int, []byte, error) {
	if !u.Configured() {
		return 0, nil, ErrMissingAPIKey
	}
	body := chatRequest{
		Model:     u.model,
		MaxTokens: u.maxTokens,
		System:    system,
		Messages:  messages,
	}
	start := time.Now()
	resp, err := u.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", u.apiKey).
		SetHeader("anthropic-version", DefaultAnthropicVersion).
		SetBody(body).
		Post(u.url)
	metrics.UpstreamLatencySeconds.WithLabelValues("upstream").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, fmt.Errorf("upstream request: %w", err)
	}
	return resp.StatusCode(), resp.Body(), nil
}
