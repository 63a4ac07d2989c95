package knowledge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	bodies map[string]string
}

func (f fakeSource) Fetch(_ context.Context, name string) (string, error) {
	body, ok := f.bodies[name]
	if !ok {
		return "", errors.New("not found")
	}
	return body, nil
}

func TestAssemble_SkipsFailedDocuments(t *testing.T) {
	src := fakeSource{bodies: map[string]string{
		"1-company-overview.txt":  "overview",
		"3-aoda-compliance-info.txt": "aoda",
		"5-contact-process.txt":   "contact",
	}}
	l := NewLoader(src, nil, zerolog.Nop())

	got, err := l.Assemble(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "overview"+Separator+"aoda"+Separator+"contact", got)
}

func TestBuild_WrapsDocumentsInPreamble(t *testing.T) {
	src := fakeSource{bodies: map[string]string{"a.txt": "alpha", "b.txt": "beta"}}
	l := NewLoader(src, []string{"a.txt", "b.txt"}, zerolog.Nop())

	got := l.Build(context.Background())
	assert.True(t, strings.HasPrefix(got, "You are a friendly and knowledgeable voice assistant"))
	assert.Contains(t, got, "Company Information:\nalpha"+Separator+"beta")
	assert.True(t, strings.HasSuffix(got, "so be conversational and concise."))
}

func TestBuild_FallbackWhenNothingLoads(t *testing.T) {
	l := NewLoader(fakeSource{}, nil, zerolog.Nop())
	_, err := l.Assemble(context.Background())
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, Fallback, l.Build(context.Background()))
}

func TestLoadInto_SetsOnce(t *testing.T) {
	dst := NewContext()
	require.True(t, dst.Set("first"))
	l := NewLoader(fakeSource{bodies: map[string]string{"a.txt": "alpha"}}, []string{"a.txt"}, zerolog.Nop())
	l.LoadInto(context.Background(), dst)
	assert.Equal(t, "first", dst.Text())
}

func TestContext_WaitReturnsCurrentValueOnTimeout(t *testing.T) {
	c := NewContext()
	start := time.Now()
	assert.Equal(t, "", c.Wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Set("ready")
	}()
	assert.Equal(t, "ready", c.Wait(context.Background(), time.Second))

	select {
	case <-c.Ready():
	default:
		t.Fatalf("expected ready channel closed")
	}
}

func TestContext_WaitWithoutBudgetDoesNotBlock(t *testing.T) {
	c := NewContext()
	assert.Equal(t, "", c.Wait(context.Background(), 0))
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chatbot-training/4-faqs.txt":
			_, _ = w.Write([]byte("faq body"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL + "/chatbot-training")
	body, err := src.Fetch(context.Background(), "4-faqs.txt")
	require.NoError(t, err)
	assert.Equal(t, "faq body", body)

	_, err = src.Fetch(context.Background(), "missing.txt")
	assert.Error(t, err)
}

func TestSupabaseSource_Fetch(t *testing.T) {
	var gotBucket, gotPath string
	src := &SupabaseSource{
		bucket: "knowledge",
		prefix: "chatbot-training",
		download: func(bucket, filePath string) ([]byte, error) {
			gotBucket, gotPath = bucket, filePath
			return []byte("contact us"), nil
		},
	}
	body, err := src.Fetch(context.Background(), "5-contact-process.txt")
	require.NoError(t, err)
	assert.Equal(t, "contact us", body)
	assert.Equal(t, "knowledge", gotBucket)
	assert.Equal(t, "chatbot-training/5-contact-process.txt", gotPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx, "5-contact-process.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
