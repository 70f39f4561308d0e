package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/driveshare/driveshare/pkg/messaging"
)

// Subjects the archive listens on. Alert subjects are advisory noise
// and deliberately not archived.
var archivedSubjects = []string{"rental.*", "dispute.*", "vehicle.*", "policy.*"}

// Subscriber bridges the observation bus into the store. Instances
// share a queue group so running more than one archives each event
// once.
type Subscriber struct {
	store  *Store
	client *messaging.Client
	logger *zap.Logger
}

// NewSubscriber wires a Subscriber.
func NewSubscriber(store *Store, client *messaging.Client, logger *zap.Logger) *Subscriber {
	return &Subscriber{store: store, client: client, logger: logger}
}

// Run subscribes and blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	for _, subject := range archivedSubjects {
		if err := s.client.QueueSubscribe(subject, "archive", s.handle); err != nil {
			return err
		}
	}
	s.logger.Info("archive subscriber started", zap.Strings("subjects", archivedSubjects))

	<-ctx.Done()
	return ctx.Err()
}

func (s *Subscriber) handle(msg *nats.Msg) {
	var env messaging.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("dropping malformed observation",
			zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.Record(ctx, &env); err != nil {
		s.logger.Error("failed to archive observation",
			zap.String("subject", env.Subject), zap.String("event_id", env.ID.String()), zap.Error(err))
	}
}
