package events

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var eventIDPattern = regexp.MustCompile(`^evt_\d+_[0-9a-z]{7}$`)

func TestNewEventID_MatchesFormat(t *testing.T) {
	id := NewEventID(time.Now())
	assert.Regexp(t, eventIDPattern, id)
}

func TestNewEventID_UniqueAcrossCalls(t *testing.T) {
	now := time.Now()
	a := NewEventID(now)
	b := NewEventID(now)
	assert.NotEqual(t, a, b)
}

func TestNewImageProcessed_SetsEventType(t *testing.T) {
	env := NewImageProcessed(time.Now(), ImageProcessedPayload{ImageID: "img-1"})
	assert.Equal(t, TypeImageProcessed, env.EventType)
	assert.Regexp(t, eventIDPattern, env.EventID)
}

func TestNewImageFailed_SetsEventType(t *testing.T) {
	imageID := "img-1"
	env := NewImageFailed(time.Now(), ImageFailedPayload{ImageID: &imageID, ErrorCode: "UNKNOWN_ERROR"})
	assert.Equal(t, TypeImageFailed, env.EventType)
}

func TestNewImageFailed_NilImageIDAllowed(t *testing.T) {
	env := NewImageFailed(time.Now(), ImageFailedPayload{ImageID: nil, ErrorCode: "UNKNOWN_ERROR"})
	payload, ok := env.Payload.(ImageFailedPayload)
	assert.True(t, ok)
	assert.Nil(t, payload.ImageID)
}
