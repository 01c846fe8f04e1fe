package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/swifty/pixpro-worker/internal/domain"
	"github.com/swifty/pixpro-worker/internal/fault"
	"github.com/swifty/pixpro-worker/internal/observability"
	"github.com/swifty/pixpro-worker/internal/pipeline"
)

// Consumer drives the per-partition state machine: Received → Executing →
// Faulted(retryable|terminal) → Done. One Consumer owns exactly one
// partition's queue and its own prefetch-bounded worker pool.
type Consumer struct {
	Channel     *amqp.Channel
	Partition   int
	Prefetch    int
	ConsumerTag string

	Pipeline  *pipeline.Pipeline
	Policy    domain.RetryPolicy
	Scheduler domain.RepublishScheduler
	Publisher domain.OutcomePublisher

	Logger *slog.Logger
}

// Run registers the consumer and blocks, dispatching deliveries to a
// prefetch-bounded pool of handler goroutines, until ctx is cancelled or
// the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.Channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("op=amqp.Consumer.Run: qos partition=%d: %w", c.Partition, err)
	}

	queue := PartitionQueueName(c.Partition)
	deliveries, err := c.Channel.Consume(queue, c.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("op=amqp.Consumer.Run: consume queue=%s: %w", queue, err)
	}

	sem := make(chan struct{}, prefetch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("op=amqp.Consumer.Run: delivery channel closed queue=%s", queue)
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				c.handle(ctx, d)
			}(d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	partitionLabel := fmt.Sprintf("%d", c.Partition)
	observability.ReceiveJob(partitionLabel)
	c.logger().Debug("job received", slog.String("retry_status", string(domain.RetryStatusReceived)), slog.Int("partition", c.Partition))

	var job domain.ImageJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.logger().Error("malformed delivery, routing to dead-letter",
			slog.String("retry_status", string(domain.RetryStatusExhausted)),
			slog.Int("partition", c.Partition), slog.Any("error", err))
		failure := domain.PipelineFailure{
			ErrorCode:    domain.ErrCodeUnknownError,
			ErrorMessage: fmt.Sprintf("malformed delivery: %v", err),
			ObservedAt:   time.Now(),
		}
		if pubErr := c.Publisher.PublishFailure(ctx, job, failure); pubErr != nil {
			c.logger().Error("publish failure event failed", slog.Any("error", pubErr))
		}
		observability.RejectJob(partitionLabel, string(domain.ErrCodeUnknownError))
		observability.RecordDLQ(string(domain.ErrCodeUnknownError))
		_ = d.Nack(false, false)
		return
	}

	delivery := domain.DeliveryContext{
		Partition:     c.Partition,
		RetryCount:    headerInt(d.Headers, "x-retry-count"),
		DeliveryTag:   d.DeliveryTag,
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		Timestamp:     d.Timestamp,
	}

	if delivery.RetryCount > c.Policy.MaxRetries {
		c.logger().Error("retry budget already exceeded on ingress, routing to dead-letter",
			slog.String("retry_status", string(domain.RetryStatusExhausted)),
			slog.String("imageId", job.ImageID),
			slog.Int("partition", delivery.Partition),
			slog.Int("retry_count", delivery.RetryCount))
		failure := domain.PipelineFailure{
			ImageID:      job.ImageID,
			UserID:       job.UserID,
			ErrorCode:    domain.ErrCodeRetryLimitExceeded,
			ErrorMessage: fmt.Sprintf("retryCount %d exceeds MAX_RETRIES %d", delivery.RetryCount, c.Policy.MaxRetries),
			RetryCount:   delivery.RetryCount,
			ObservedAt:   time.Now(),
		}
		if pubErr := c.Publisher.PublishFailure(ctx, job, failure); pubErr != nil {
			c.logger().Error("publish failure event failed",
				slog.String("imageId", job.ImageID), slog.Any("error", pubErr))
		}
		observability.RejectJob(partitionLabel, string(domain.ErrCodeRetryLimitExceeded))
		observability.RecordDLQ(string(domain.ErrCodeRetryLimitExceeded))
		_ = d.Nack(false, false)
		return
	}

	observability.StartProcessingJob(partitionLabel)
	c.logger().Debug("job executing",
		slog.String("retry_status", string(domain.RetryStatusExecuting)),
		slog.String("imageId", job.ImageID), slog.Int("partition", c.Partition))

	// Timings travel with the task's result so nothing the task writes is read
	// after a timeout.
	type runOutcome struct {
		result  domain.PipelineResult
		timings domain.PhaseTimings
	}
	out, err := pipeline.RunWithDeadline(ctx, c.Policy.ProcessingDeadline, func(ctx context.Context) (runOutcome, error) {
		r, t, runErr := c.Pipeline.Run(ctx, job)
		return runOutcome{result: r, timings: t}, runErr
	})
	result, timings := out.result, out.timings

	if err == nil {
		observability.CompleteJob(partitionLabel)
		processingTime := time.Duration(result.Timings.TotalMillis()) * time.Millisecond
		if pubErr := c.Publisher.PublishSuccess(ctx, job, result, processingTime); pubErr != nil {
			c.logger().Error("publish success event failed",
				slog.String("imageId", job.ImageID), slog.Any("error", pubErr))
		}
		c.logger().Debug("job done",
			slog.String("retry_status", string(domain.RetryStatusDone)),
			slog.String("imageId", job.ImageID), slog.Int("partition", c.Partition))
		_ = d.Ack(false)
		return
	}

	verdict := c.classify(timings, err)
	failure := domain.PipelineFailure{
		ImageID:      job.ImageID,
		UserID:       job.UserID,
		ErrorCode:    verdict.Code,
		ErrorMessage: err.Error(),
		RetryCount:   delivery.RetryCount,
		ObservedAt:   time.Now(),
		Timings:      timings,
	}

	if verdict.Retryable && delivery.RetryCount < c.Policy.MaxRetries {
		newRetryCount := delivery.RetryCount + 1
		delay := c.Policy.DelayFor(newRetryCount)
		c.logger().Warn("job faulted, scheduling retry",
			slog.String("retry_status", string(domain.RetryStatusRetrying)),
			slog.String("imageId", job.ImageID),
			slog.Int("partition", delivery.Partition),
			slog.Int("retry_count", newRetryCount),
			slog.Duration("delay", delay),
			slog.String("error_code", string(verdict.Code)))
		c.Scheduler.ScheduleRepublish(d.Body, delivery.Partition, newRetryCount, delay)
		observability.FailJob(partitionLabel, string(verdict.Code))
		_ = d.Ack(false)
		return
	}

	record := domain.DeadLetterRecord{
		Job:          job,
		ErrorCode:    verdict.Code,
		ErrorMessage: err.Error(),
		RetryCount:   delivery.RetryCount,
		Partition:    delivery.Partition,
		FailedAt:     failure.ObservedAt,
		Timings:      timings,
	}
	c.logger().Error("job terminal, routing to dead-letter",
		slog.String("retry_status", string(domain.RetryStatusExhausted)),
		slog.String("imageId", record.Job.ImageID),
		slog.Int("partition", record.Partition),
		slog.Int("retry_count", record.RetryCount),
		slog.String("error_code", string(record.ErrorCode)),
		slog.Time("failed_at", record.FailedAt))
	if pubErr := c.Publisher.PublishFailure(ctx, job, failure); pubErr != nil {
		c.logger().Error("publish failure event failed",
			slog.String("imageId", job.ImageID), slog.Any("error", pubErr))
	}
	observability.FailJob(partitionLabel, string(verdict.Code))
	observability.RecordDLQ(string(verdict.Code))
	_ = d.Nack(false, false)
}

func (c *Consumer) classify(timings domain.PhaseTimings, err error) fault.Verdict {
	if errors.Is(err, pipeline.ErrTimeout) {
		return fault.Verdict{Code: domain.ErrCodeProcessingTimeout, Retryable: false}
	}
	return fault.Classify(timings.FailurePhase(), err)
}

func (c *Consumer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// headerInt reads an integer-valued AMQP header, tolerating the handful of
// wire representations a broker or republishing client may use.
func headerInt(headers amqp.Table, key string) int {
	if headers == nil {
		return 0
	}
	switch v := headers[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	default:
		return 0
	}
}
