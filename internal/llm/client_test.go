package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ModeSelectedByKey(t *testing.T) {
	assert.Equal(t, ModeProxy, NewClient(Options{ProxyURL: "/api/chat"}).Mode())
	assert.Equal(t, ModeDirect, NewClient(Options{ProxyURL: "/api/chat", APIKey: "sk"}).Mode())
}

func TestClient_ProxyModePostsSystemAndMessages(t *testing.T) {
	var got map[string]json.RawMessage
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Near market rentals are..."}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{ProxyURL: srv.URL})
	reply, err := c.Complete(context.Background(), "ctx", []Message{{Role: RoleUser, Content: "What are near market rentals?"}})
	require.NoError(t, err)
	assert.Equal(t, "Near market rentals are...", reply)

	assert.JSONEq(t, `"ctx"`, string(got["system"]))
	assert.JSONEq(t, `[{"role":"user","content":"What are near market rentals?"}]`, string(got["messages"]))
	assert.NotContains(t, got, "model")
	assert.NotContains(t, got, "max_tokens")
	assert.Empty(t, headers.Get("x-api-key"))
}

func TestClient_DirectModeAddsCredentialAndModel(t *testing.T) {
	var got map[string]json.RawMessage
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hi"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{ProxyURL: "http://unused.invalid", APIKey: "sk-test", UpstreamURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), "sys", []Message{{Role: RoleUser, Content: "hello"}})
	require.NoError(t, err)

	assert.Equal(t, "sk-test", headers.Get("x-api-key"))
	assert.Equal(t, DefaultAnthropicVersion, headers.Get("anthropic-version"))
	assert.JSONEq(t, `"m"`, string(got["model"]))
	assert.JSONEq(t, `1024`, string(got["max_tokens"]))
}

func TestClient_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{"proxy_error_string", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
			_, _ = w.Write([]byte(`{"error":"Server configuration error."}`))
		}, func(t *testing.T, err error) {
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 500, apiErr.Status)
			assert.Equal(t, "Server configuration error.", apiErr.Message)
		}},
		{"upstream_error_object", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(429)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
		}, func(t *testing.T, err error) {
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "slow down", apiErr.Message)
		}},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not-json"))
		}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrMalformedResponse)
		}},
		{"empty_content", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"content":[]}`))
		}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrMalformedResponse)
		}},
		{"blank_text", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  "}]}`))
		}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrEmptyReply)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(Options{ProxyURL: srv.URL, Timeout: time.Second})
			_, err := c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Options{ProxyURL: url, Timeout: time.Second})
	_, err := c.Complete(context.Background(), "", nil)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestExtractText_SkipsNonTextBlocks(t *testing.T) {
	text, err := ExtractText([]byte(`{"content":[{"type":"tool_use","id":"x"},{"type":"text","text":"answer"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "answer", text)

	text, err = ExtractText([]byte(`{"content":[{"text":"untyped"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "untyped", text)
}

func TestErrorMessage(t *testing.T) {
	cases := map[string]string{
		`{"error":"plain"}`:                    "plain",
		`{"error":{"message":"nested"}}`:       "nested",
		`{"message":"top"}`:                    "top",
		`{"error":{"type":"overloaded_error"}}`: `{"type":"overloaded_error"}`,
		`{}`:                                   "API request failed",
		`garbage`:                              "API request failed",
	}
	for body, want := range cases {
		assert.Equal(t, want, ErrorMessage([]byte(body)), body)
	}
}
