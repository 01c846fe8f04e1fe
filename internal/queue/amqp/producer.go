package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/swifty/pixpro-worker/internal/domain"
	"github.com/swifty/pixpro-worker/internal/events"
)

// Publisher implements domain.OutcomePublisher, emitting ImageProcessed and
// image.failed events to the results fan-out exchange.
type Publisher struct {
	Channel *amqp.Channel
}

// PublishSuccess emits an ImageProcessed event.
func (p *Publisher) PublishSuccess(ctx context.Context, job domain.ImageJob, result domain.PipelineResult, processingTime time.Duration) error {
	env := events.NewImageProcessed(time.Now(), events.ImageProcessedPayload{
		ImageID:        result.ImageID,
		UserID:         job.UserID,
		ProcessedURL:   result.ProcessedURL,
		PublicID:       result.PublicID,
		Style:          result.Style,
		ProcessingTime: processingTime.Milliseconds(),
	})
	return p.publish(ctx, env)
}

// PublishFailure emits an image.failed event. A failure with no recoverable
// image id (e.g. the delivery body never decoded) reports imageId: null.
func (p *Publisher) PublishFailure(ctx context.Context, job domain.ImageJob, failure domain.PipelineFailure) error {
	var imageID *string
	if failure.ImageID != "" {
		imageID = &failure.ImageID
	}
	env := events.NewImageFailed(time.Now(), events.ImageFailedPayload{
		ImageID:    imageID,
		UserID:     failure.UserID,
		Error:      failure.ErrorMessage,
		ErrorCode:  string(failure.ErrorCode),
		RetryCount: failure.RetryCount,
	})
	return p.publish(ctx, env)
}

func (p *Publisher) publish(ctx context.Context, env events.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("op=amqp.Publisher.publish: marshal %s: %w", env.EventType, err)
	}
	err = p.Channel.PublishWithContext(ctx, ResultsExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    env.EventID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("op=amqp.Publisher.publish: publish %s: %w", env.EventType, err)
	}
	return nil
}
