package ledger

import (
	"context"
	"fmt"
)

// Publisher sends one message to a topic; aws.SNSClient satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject, message string) error
}

// SNSNotifier publishes run summaries.
type SNSNotifier struct {
	publisher Publisher
}

func NewSNSNotifier(p Publisher) *SNSNotifier {
	return &SNSNotifier{publisher: p}
}

func (n *SNSNotifier) Notify(ctx context.Context, s Summary) error {
	subject := fmt.Sprintf("listing run %s: %d unresolved fields (%s)", s.RunID, s.Failures, s.Scope.Key())
	if len(subject) > 100 {
		subject = subject[:100]
	}
	return n.publisher.Publish(ctx, subject, s.JSON())
}
