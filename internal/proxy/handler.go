package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/JohnHCunningham/housing-website/internal/llm"
	"github.com/JohnHCunningham/housing-website/internal/metrics"
)

const (
	msgMethodNotAllowed = "Method not allowed"
	msgNotConfigured    = "Server configuration error. Please contact support."
	msgInvalidRequest   = "Invalid request: messages required"
	msgInternal         = "Internal server error. Please try again."
)

// Forwarder sends a validated request to the chat API.
type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, system, messages json.RawMessage) (int, []byte, error)
}

// Handler serves the chat proxy endpoint. It attaches the server-held
// credential so browsers never see it.
type Handler struct {
	upstream Forwarder
	log      zerolog.Logger
}

func NewHandler(upstream Forwarder, log zerolog.Logger) *Handler {
	return &Handler{upstream: upstream, log: log}
}

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
	System   json.RawMessage `json:"system"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Register mounts the handler on path for every method so that non-POST
// requests get the JSON 405 body.
func (h *Handler) Register(e *echo.Echo, path string) {
	e.Any(path, h.Chat)
}

// Chat forwards {messages, system} upstream and relays the answer verbatim.
func (h *Handler) Chat(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return h.reply(c, http.StatusMethodNotAllowed, errorBody{Error: msgMethodNotAllowed})
	}
	if !h.upstream.Configured() {
		h.log.Error().Msg("chat proxy called without an upstream api key")
		return h.reply(c, http.StatusInternalServerError, errorBody{Error: msgNotConfigured})
	}

	var req chatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || !isArray(req.Messages) {
		return h.reply(c, http.StatusBadRequest, errorBody{Error: msgInvalidRequest})
	}

	status, body, err := h.upstream.Forward(c.Request().Context(), req.System, req.Messages)
	if err != nil {
		h.log.Error().Err(err).Msg("chat upstream unreachable")
		return h.reply(c, http.StatusInternalServerError, errorBody{Error: msgInternal})
	}
	if status < 200 || status > 299 {
		h.log.Warn().Int("status", status).Bytes("body", body).Msg("chat upstream rejected request")
		return h.reply(c, status, errorBody{Error: llm.ErrorMessage(body), Details: details(body)})
	}

	metrics.ProxyRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	return c.JSONBlob(http.StatusOK, body)
}

func (h *Handler) reply(c echo.Context, status int, body errorBody) error {
	metrics.ProxyRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	return c.JSON(status, body)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// details embeds the upstream body as JSON when it is JSON, otherwise as text.
func details(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
