package notifiers

import "context"

// Notifier delivers checkout events to a downstream sink (SQS, HTTP, etc).
type Notifier interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}
