package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/swifty/pixpro-worker/internal/observability"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-exp:generateContent"

// GeminiTransformer is the "Transform" stage collaborator: it calls the
// Gemini image-generation endpoint with the original image and a text
// instruction derived from style, returning the regenerated image bytes.
type GeminiTransformer struct {
	endpoint string
	apiKey   string
	client   *http.Client
	observe  *observability.IntegratedObservableClient
}

// NewGeminiTransformer builds a GeminiTransformer. timeout bounds a single
// HTTP call, independent of the pipeline's overall processing deadline.
func NewGeminiTransformer(serviceName, apiKey string, timeout time.Duration) *GeminiTransformer {
	return NewGeminiTransformerWithEndpoint(serviceName, defaultGeminiEndpoint, apiKey, timeout)
}

// NewGeminiTransformerWithEndpoint is NewGeminiTransformer with an
// overridable endpoint, used by tests to point at an httptest server.
func NewGeminiTransformerWithEndpoint(serviceName, endpoint, apiKey string, timeout time.Duration) *GeminiTransformer {
	return &GeminiTransformer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		observe: observability.NewIntegratedObservableClient(
			observability.ConnectionTypeAI,
			observability.OperationTypeTransform,
			"gemini",
			serviceName,
			timeout, timeout/4, timeout*2,
		),
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Transform sends image and a style instruction to Gemini. If the response
// carries no inline image part, it returns (nil, nil): the pipeline treats
// that as a pass-through, not a failure.
func (t *GeminiTransformer) Transform(ctx context.Context, image []byte, style string) ([]byte, error) {
	reqBody := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{
		{Text: fmt.Sprintf("Apply the %q style to this image.", style)},
		{InlineData: &geminiInline{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(image)}},
	}}}}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("op=backend.GeminiTransformer.Transform: marshal request: %w", err)
	}

	var out []byte
	err = t.observe.ExecuteWithMetrics(ctx, "transform", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?key="+t.apiKey, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("GEMINI_TIMEOUT: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("RATE_LIMIT_EXCEEDED: gemini status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, snippet)
		}

		var decoded geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		for _, c := range decoded.Candidates {
			for _, p := range c.Content.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					decodedImg, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err != nil {
						return fmt.Errorf("decode inline image: %w", err)
					}
					out = decodedImg
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("op=backend.GeminiTransformer.Transform: %w", err)
	}
	return out, nil
}
