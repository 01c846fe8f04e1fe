// Package amqp wires the partitioned consumer, outcome publisher, and
// backoff scheduler onto a RabbitMQ broker via amqp091-go.
package amqp

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ProcessingExchange is the topic exchange jobs are published and
	// republished to, routed to a partition queue by routing key.
	ProcessingExchange = "pixpro.processing"
	// ResultsExchange is the durable fan-out exchange outcome events are
	// published to.
	ResultsExchange = "image.results"
)

// PartitionQueueName returns the ingress queue name for a given partition.
func PartitionQueueName(partition int) string {
	return fmt.Sprintf("image.processing.partition.%d", partition)
}

// PartitionRoutingKey returns the routing key a job for a given partition
// is published and republished under.
func PartitionRoutingKey(partition int) string {
	return fmt.Sprintf("image.uploaded.partition.%d", partition)
}

// DeclareTopology declares the processing exchange, one durable queue per
// partition bound to it (each wired to dlxExchange with messageTTLMillis as
// its dead-letter policy), and the results fan-out exchange. It is
// idempotent: re-declaring the same topology with the same arguments is a
// no-op against a running broker.
func DeclareTopology(ch *amqp.Channel, partitions int, dlxExchange string, messageTTLMillis int64) error {
	if err := ch.ExchangeDeclare(ProcessingExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=amqp.DeclareTopology: declare processing exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlxExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=amqp.DeclareTopology: declare dlx exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(ResultsExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=amqp.DeclareTopology: declare results exchange: %w", err)
	}

	for p := 0; p < partitions; p++ {
		queue := PartitionQueueName(p)
		routingKey := PartitionRoutingKey(p)
		args := amqp.Table{
			"x-dead-letter-exchange": dlxExchange,
			"x-message-ttl":          messageTTLMillis,
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("op=amqp.DeclareTopology: declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, routingKey, ProcessingExchange, false, nil); err != nil {
			return fmt.Errorf("op=amqp.DeclareTopology: bind queue %s: %w", queue, err)
		}

		dlq := queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("op=amqp.DeclareTopology: declare dlq %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, routingKey, dlxExchange, false, nil); err != nil {
			return fmt.Errorf("op=amqp.DeclareTopology: bind dlq %s: %w", dlq, err)
		}
	}

	return nil
}
