package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

const flushTimeout = 5 * time.Second

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSPublisher publishes job messages on a subject. Delivery is
// at-most-once; consumers that need persistence should use a stream bound
// to the subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("rquest-bridge"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("[Queue] NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("[Queue] NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("[Queue] Connected to NATS", "url", conn.ConnectedUrl(), "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish sends msg and waits for the server to acknowledge the flush.
// Trace context from ctx is injected into the message headers.
func (p *NATSPublisher) Publish(ctx context.Context, msg JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}
	m := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{nats.MsgIdHdr: []string{msg.TaskID}},
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(m))

	if err := p.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		err = p.conn.FlushTimeout(flushTimeout)
	} else {
		err = p.conn.FlushWithContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to flush %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
