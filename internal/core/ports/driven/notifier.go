package driven

import "context"

// Notifier publishes a message to a topic. Delivery is fire and forget:
// callers log a failed publish and move on.
type Notifier interface {
	Publish(ctx context.Context, topic, subject, message string) error
}
