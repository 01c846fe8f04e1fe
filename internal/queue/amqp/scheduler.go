package amqp

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/swifty/pixpro-worker/internal/observability"
)

// Scheduler implements domain.RepublishScheduler. It owns its own timer per
// call so ScheduleRepublish never blocks the consumer's dispatch loop;
// publishing happens from a background goroutine once the delay elapses.
type Scheduler struct {
	Channel *amqp.Channel
	Logger  *slog.Logger
}

// ScheduleRepublish sleeps delay, then republishes raw to the processing
// exchange under the partition's routing key, persistent, carrying the
// updated retry-count header. Delivery ordering across partitions and
// across retry tiers is not guaranteed.
func (s *Scheduler) ScheduleRepublish(raw []byte, partition, newRetryCount int, delay time.Duration) {
	go func() {
		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := s.Channel.PublishWithContext(ctx, ProcessingExchange, PartitionRoutingKey(partition), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				"x-partition":   int32(partition),
				"x-retry-count": int32(newRetryCount),
			},
			Body: raw,
		})
		if err != nil {
			s.logger().Error("republish failed",
				slog.Int("partition", partition),
				slog.Int("retry_count", newRetryCount),
				slog.Any("error", err))
			return
		}
		observability.RecordRetryScheduled(PartitionRoutingKey(partition), newRetryCount)
	}()
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
