// Package nats publishes notifications to a NATS server.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure Notifier implements the interface.
var _ driven.Notifier = (*Notifier)(nil)

// HeaderSubject carries the notification subject line.
const HeaderSubject = "Subject"

const (
	clientName     = "lakegate"
	connectTimeout = 5 * time.Second
	reconnectWait  = 2 * time.Second
	maxReconnects  = 10
	flushTimeout   = 5 * time.Second
)

// Conn is the part of *nats.Conn the notifier needs.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Notifier publishes one message per notification. The topic is the NATS
// subject; the notification subject travels in a header.
type Notifier struct {
	conn Conn
}

// Dial connects to the server at url.
func Dial(url string) (*Notifier, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w: %w", url, domain.ErrTransient, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn Conn) *Notifier {
	return &Notifier{conn: conn}
}

// Publish sends message to topic and waits for the server to acknowledge the
// flush, so a broken connection is reported to the caller.
func (n *Notifier) Publish(ctx context.Context, topic, subject, message string) error {
	msg := nats.NewMsg(topic)
	msg.Header.Set(HeaderSubject, subject)
	msg.Data = []byte(message)

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w: %w", topic, domain.ErrTransient, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing %s: %w: %w", topic, domain.ErrTransient, err)
	}
	return nil
}

// Close drains the connection.
func (n *Notifier) Close() error {
	return n.conn.Drain()
}
