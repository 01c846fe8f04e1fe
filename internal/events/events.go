// Package events defines the JSON envelopes published to the results
// exchange once a job reaches a terminal outcome.
package events

import (
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Envelope is the shared shape of every outcome event: a type tag, a unique
// id, an ISO 8601 UTC timestamp, and a type-specific payload.
type Envelope struct {
	EventType string      `json:"eventType"`
	EventID   string      `json:"eventId"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ImageProcessedPayload is the payload of an ImageProcessed event.
type ImageProcessedPayload struct {
	ImageID        string `json:"imageId"`
	UserID         string `json:"userId"`
	ProcessedURL   string `json:"processedUrl"`
	PublicID       string `json:"publicId"`
	Style          string `json:"style"`
	ProcessingTime int64  `json:"processingTime"`
}

// ImageFailedPayload is the payload of an image.failed event. ImageID is a
// pointer so a malformed delivery with no recoverable id can report
// imageId: null rather than an empty string.
type ImageFailedPayload struct {
	ImageID    *string `json:"imageId"`
	UserID     string  `json:"userId"`
	Error      string  `json:"error"`
	ErrorCode  string  `json:"errorCode"`
	RetryCount int     `json:"retryCount"`
}

const (
	TypeImageProcessed = "ImageProcessed"
	TypeImageFailed    = "image.failed"
)

// NewEventID formats an eventId as evt_<unix-ms>_<7-char-random>, the
// random suffix drawn from a ULID's entropy so it stays unique under
// concurrent publishers without a shared counter.
func NewEventID(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	s := strings.ToLower(id.String())
	return "evt_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + s[len(s)-7:]
}

// NewImageProcessed builds the envelope for a successful pipeline run.
func NewImageProcessed(now time.Time, payload ImageProcessedPayload) Envelope {
	return Envelope{
		EventType: TypeImageProcessed,
		EventID:   NewEventID(now),
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
}

// NewImageFailed builds the envelope for a terminal failure.
func NewImageFailed(now time.Time, payload ImageFailedPayload) Envelope {
	return Envelope{
		EventType: TypeImageFailed,
		EventID:   NewEventID(now),
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
}
