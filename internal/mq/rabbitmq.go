package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tasktrack/apiserver/config"
)

// AttrContentType overrides the content type recorded on a published message.
const AttrContentType = "content-type"

// RabbitMQClient publishes to and consumes from named queues on the default
// exchange.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool

	mu       sync.Mutex
	declared map[string]struct{}
}

// NewRabbitMQClient dials the broker and opens a channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		declared:        make(map[string]struct{}),
	}, nil
}

// Publish sends data to the queue named channel and returns the generated
// message id. Messages are persistent when queues are durable.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if err := r.ensureQueue(channel); err != nil {
		return "", err
	}

	contentType := "application/json"
	headers := amqp.Table{}
	for key, value := range attrs {
		if key == AttrContentType {
			contentType = value
			continue
		}
		headers[key] = value
	}

	deliveryMode := amqp.Transient
	if r.queueDurable {
		deliveryMode = amqp.Persistent
	}

	messageID := uuid.NewString()
	err := r.channel.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: deliveryMode,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return messageID, nil
}

// Subscribe consumes the queue named channel until ctx is done. A handler
// error requeues the delivery.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if err := r.ensureQueue(channel); err != nil {
		return err
	}

	consumerTag := "tasktrack-" + uuid.NewString()
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryToMessage(delivery)); err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the channel and then the connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) ensureQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.declared[name]; ok {
		return nil
	}
	if _, err := r.channel.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = struct{}{}
	return nil
}

func deliveryToMessage(d amqp.Delivery) Message {
	return Message{
		ID:         d.MessageId,
		Data:       d.Body,
		Attributes: headersToAttributes(d.Headers),
	}
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
