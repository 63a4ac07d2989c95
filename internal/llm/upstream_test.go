package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstream_NotConfigured(t *testing.T) {
	u := NewUpstream("", "", "", 0)
	assert.False(t, u.Configured())
	_, _, err := u.Forward(context.Background(), nil, json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestUpstream_ForwardsVerbatim(t *testing.T) {
	var got map[string]json.RawMessage
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-api-key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"error":{"message":"short and stout"}}`))
	}))
	defer srv.Close()

	u := NewUpstream(srv.URL, "server-key", "model-x", 0)
	status, body, err := u.Forward(context.Background(), json.RawMessage(`"sys"`), json.RawMessage(`[{"role":"user","content":"hi"}]`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, status)
	assert.JSONEq(t, `{"error":{"message":"short and stout"}}`, string(body))
	assert.Equal(t, "server-key", key)
	assert.JSONEq(t, `"model-x"`, string(got["model"]))
	assert.JSONEq(t, `1024`, string(got["max_tokens"]))
	assert.JSONEq(t, `[{"role":"user","content":"hi"}]`, string(got["messages"]))
	assert.JSONEq(t, `"sys"`, string(got["system"]))
}
