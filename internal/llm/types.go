package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role attributes a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn as sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var (
	// ErrMissingAPIKey is returned when an upstream call has no credential to attach.
	ErrMissingAPIKey = errors.New("llm: api key missing")

	// ErrMalformedResponse is returned when a reply has no text content block.
	ErrMalformedResponse = errors.New("llm: response has no text content")

	// ErrEmptyReply is returned when the first text block is blank.
	ErrEmptyReply = errors.New("llm: empty reply")
)

// APIError is a non-2xx answer from the proxy or the upstream API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// chatRequest is the body shared by proxy and upstream calls. Model and
// MaxTokens are only set when the upstream is addressed directly.
type chatRequest struct {
	Model     string          `json:"model,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	System    json.RawMessage `json:"system,omitempty"`
	Messages  json.RawMessage `json:"messages"`
}

type contentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

type chatResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []contentBlock `json:"content"`
}

// ExtractText returns the text of the first text content block of a
// messages API response body.
func ExtractText(body []byte) (string, error) {
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, block := range cr.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		if block.Text == nil {
			continue
		}
		text := strings.TrimSpace(*block.Text)
		if text == "" {
			return "", ErrEmptyReply
		}
		return text, nil
	}
	return "", ErrMalformedResponse
}

// ErrorMessage pulls a human-readable message out of an error response body.
// It accepts the proxy shape {"error": "..."} as well as the upstream shape
// {"error": {"message": "..."}}.
func ErrorMessage(body []byte) string {
	const fallback = "API request failed"
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	switch e := payload["error"].(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	if e, ok := payload["error"]; ok && e != nil {
		if b, err := json.Marshal(e); err == nil {
			return string(b)
		}
	}
	return fallback
}

func encodeMessages(messages []Message) (json.RawMessage, error) {
	if messages == nil {
		messages = []Message{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return b, nil
}
