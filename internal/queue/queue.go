package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// retryTTL is how long a message waits in the retry queue before it is
// dead-lettered back onto the job queue.
const retryTTL = int32(10000)

type RabbitParams struct {
	User     string
	Password string
	Host     string
	Port     string
}

func (p RabbitParams) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/",
	}
	return u.String()
}

// RabbitPublisher publishes persistent messages onto one durable queue.
type RabbitPublisher struct {
	conn  *amqp091.Connection
	queue string

	mu sync.Mutex
	ch *amqp091.Channel
}

// Init dials RabbitMQ and declares the job queue with its retry and
// dead-letter queues.
func Init(params RabbitParams, queueName string) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(params.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := SetupQueues(ch, []string{queueName}); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("[Queue] Connected to RabbitMQ", "host", params.Host, "queue", queueName)
	return &RabbitPublisher{conn: conn, ch: ch, queue: queueName}, nil
}

func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             retryTTL,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// Publish sends msg as a persistent JSON message. The channel is reopened
// once if the broker closed it.
func (p *RabbitPublisher) Publish(ctx context.Context, msg JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to reopen channel: %w", err)
		}
		p.ch = ch
	}

	return PublishFIFO(ctx, p.ch, p.queue, msg.TaskID, data)
}

func PublishFIFO(ctx context.Context, ch *amqp091.Channel, queueName string, messageID string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	err := ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		publishing,
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}
