package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiTransformer_ReturnsDecodedImage(t *testing.T) {
	wantImage := []byte("transformed-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiResponse{Candidates: []struct {
			Content geminiContent `json:"content"`
		}{{Content: geminiContent{Parts: []geminiPart{{InlineData: &geminiInline{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(wantImage),
		}}}}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	tr := NewGeminiTransformerWithEndpoint("pixpro-worker-test", srv.URL, "key", 5*time.Second)
	out, err := tr.Transform(context.Background(), []byte("raw"), "vintage")
	require.NoError(t, err)
	assert.Equal(t, wantImage, out)
}

func TestGeminiTransformer_NoInlineDataIsPassThroughNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer srv.Close()

	tr := NewGeminiTransformerWithEndpoint("pixpro-worker-test", srv.URL, "key", 5*time.Second)
	out, err := tr.Transform(context.Background(), []byte("raw"), "vintage")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGeminiTransformer_RateLimitedStatusIsRetryableMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewGeminiTransformerWithEndpoint("pixpro-worker-test", srv.URL, "key", 5*time.Second)
	_, err := tr.Transform(context.Background(), []byte("raw"), "vintage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_EXCEEDED")
}
