package kafka

import (
	"context"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/port"
)

// Publisher is the part of Producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// Notifier publishes submission status changes, keyed by submission id so a
// submission's notifications stay ordered within one partition.
type Notifier struct {
	pub    Publisher
	topic  string
	source string
	now    func() time.Time
}

func NewNotifier(pub Publisher, topic, source string) *Notifier {
	if topic == "" {
		topic = TopicNotification
	}
	return &Notifier{pub: pub, topic: topic, source: source, now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, note port.Notification) error {
	env, err := NewEventEnvelope(EventSubmissionStatusChanged, n.source, note, n.now())
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"to_status": string(note.To)}
	msg, err := env.ToMessage(n.topic, note.SubmissionID)
	if err != nil {
		return err
	}
	return n.pub.Publish(ctx, msg)
}
