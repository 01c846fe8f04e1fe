package backend

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/swifty/pixpro-worker/internal/domain"
	"github.com/swifty/pixpro-worker/internal/observability"
)

// CloudinaryStore is the "Store" stage collaborator: it uploads the
// processed image to Cloudinary under the requested public id, folder, and
// format.
type CloudinaryStore struct {
	endpointBase string
	cloudName    string
	apiKey       string
	apiSecret    string
	client       *http.Client
	observe      *observability.IntegratedObservableClient
}

// NewCloudinaryStore builds a CloudinaryStore.
func NewCloudinaryStore(serviceName, cloudName, apiKey, apiSecret string, timeout time.Duration) *CloudinaryStore {
	return NewCloudinaryStoreWithEndpoint(serviceName, "https://api.cloudinary.com", cloudName, apiKey, apiSecret, timeout)
}

// NewCloudinaryStoreWithEndpoint is NewCloudinaryStore with an overridable
// API base, used by tests to point at an httptest server.
func NewCloudinaryStoreWithEndpoint(serviceName, endpointBase, cloudName, apiKey, apiSecret string, timeout time.Duration) *CloudinaryStore {
	return &CloudinaryStore{
		endpointBase: endpointBase,
		cloudName:    cloudName,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		observe: observability.NewIntegratedObservableClient(
			observability.ConnectionTypeStore,
			observability.OperationTypeStore,
			"cloudinary",
			serviceName,
			timeout, timeout/4, timeout*2,
		),
	}
}

type cloudinaryUploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Store uploads image as a multipart/form-data request, signed per
// Cloudinary's documented signature scheme (sorted param=value pairs,
// SHA-1'd with the api secret appended).
func (s *CloudinaryStore) Store(ctx context.Context, image []byte, obj domain.StoreObject) (domain.StoreResult, error) {
	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", s.endpointBase, s.cloudName)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	params := map[string]string{
		"public_id": obj.PublicID,
		"folder":    obj.Folder,
		"format":    obj.Format,
		"timestamp": timestamp,
	}
	signature := signCloudinaryParams(params, s.apiSecret)

	var result domain.StoreResult
	err := s.observe.ExecuteWithMetrics(ctx, "store", func(ctx context.Context) error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		_ = writer.WriteField("public_id", obj.PublicID)
		_ = writer.WriteField("folder", obj.Folder)
		_ = writer.WriteField("format", obj.Format)
		_ = writer.WriteField("timestamp", timestamp)
		_ = writer.WriteField("api_key", s.apiKey)
		_ = writer.WriteField("signature", signature)
		part, err := writer.CreateFormFile("file", obj.PublicID+"."+obj.Format)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(image); err != nil {
			return fmt.Errorf("write form file: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("close multipart writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("CLOUDINARY_TIMEOUT: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("RATE_LIMIT_EXCEEDED: cloudinary status %d", resp.StatusCode)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		var decoded cloudinaryUploadResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if decoded.Error != nil {
			return fmt.Errorf("cloudinary upload error: %s", decoded.Error.Message)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cloudinary status %d", resp.StatusCode)
		}
		result = domain.StoreResult{PublicID: decoded.PublicID, SecureURL: decoded.SecureURL}
		return nil
	})
	if err != nil {
		return domain.StoreResult{}, fmt.Errorf("op=backend.CloudinaryStore.Store imageId=%s: %w", obj.PublicID, err)
	}
	return result, nil
}

func signCloudinaryParams(params map[string]string, apiSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := &bytes.Buffer{}
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(params[k])
	}
	buf.WriteString(apiSecret)

	sum := sha1.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
