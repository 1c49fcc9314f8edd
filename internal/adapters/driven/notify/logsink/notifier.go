// Package logsink provides a driven.Notifier that writes notifications to the
// logger instead of an external service.
package logsink

import (
	"context"
	"sync"

	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Notifier implements the interface.
var _ driven.Notifier = (*Notifier)(nil)

// Message is a notification that was written to the log.
type Message struct {
	Topic   string
	Subject string
	Body    string
}

// Notifier logs every notification at warning level so it is visible
// without --verbose, and keeps them for inspection.
type Notifier struct {
	mu   sync.Mutex
	sent []Message
}

// New creates a log sink.
func New() *Notifier {
	return &Notifier{}
}

// Publish logs the notification. It never fails.
func (n *Notifier) Publish(_ context.Context, topic, subject, message string) error {
	logger.With("topic", topic, "subject", subject).Warn("%s", message)

	n.mu.Lock()
	n.sent = append(n.sent, Message{Topic: topic, Subject: subject, Body: message})
	n.mu.Unlock()
	return nil
}

// Sent returns the notifications published so far.
func (n *Notifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent...)
}
