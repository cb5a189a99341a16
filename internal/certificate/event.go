package certificate

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GeneratedEvent is emitted exactly once per first-time, non-retroactive
// record creation. Retroactive backfills never emit it, which keeps bulk
// historical imports from triggering notification storms.
type GeneratedEvent struct {
	EventID    string
	CSUID      string
	Record     Record
	Recipient  Recipient
	Source     Source
	OccurredAt time.Time
}

// Notifier consumes generated-record events. Delivery is fire-and-forget
// from the store's perspective: implementations log their own failures and
// never surface them to the verification caller.
type Notifier interface {
	RecordGenerated(ctx context.Context, event GeneratedEvent)
}

// IDProvider issues identifiers for outbound events.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
