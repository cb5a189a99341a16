package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wisdmlabs/certverify/internal/certificate"
	"go.uber.org/zap"
)

// DefaultQueue is the durable queue generated-certificate messages are
// published to.
const DefaultQueue = "certificate.generated"

var errMissingBrokerURL = errors.New("notify: broker url required")

// Message is the wire payload published for each generated record. It
// carries enough for a downstream mailer to deliver without querying the
// primary database.
type Message struct {
	EventID        string   `json:"event_id"`
	CSUID          string   `json:"csuid"`
	RecipientID    uint64   `json:"recipient_id"`
	RecipientName  string   `json:"recipient_name"`
	RecipientEmail string   `json:"recipient_email"`
	SourceID       uint64   `json:"source_id"`
	SourceType     string   `json:"source_type"`
	SourceTitle    string   `json:"source_title"`
	To             []string `json:"to"`
	Subject        string   `json:"subject"`
	AdminSubject   string   `json:"admin_subject"`
	Body           string   `json:"body"`
	GeneratedAt    string   `json:"generated_at"`
}

// AMQPNotifierConfig configures the broker publisher.
type AMQPNotifierConfig struct {
	URL      string
	Queue    string
	Settings Settings
	Logger   *zap.Logger
}

// AMQPNotifier publishes generated-record messages to a durable queue.
type AMQPNotifier struct {
	channel  *amqp.Channel
	conn     *amqp.Connection
	queue    string
	settings Settings
	logger   *zap.Logger
}

// NewAMQPNotifier dials the broker and declares the durable queue.
func NewAMQPNotifier(cfg AMQPNotifierConfig) (*AMQPNotifier, error) {
	if cfg.URL == "" {
		return nil, errMissingBrokerURL
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: dial broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("notify: declare queue: %w", err)
	}

	return &AMQPNotifier{
		channel:  channel,
		conn:     conn,
		queue:    queue,
		settings: cfg.Settings.withDefaults(),
		logger:   logger,
	}, nil
}

// RecordGenerated implements certificate.Notifier. Publish failures are
// logged and swallowed; the record creation that triggered the event has
// already succeeded.
func (n *AMQPNotifier) RecordGenerated(ctx context.Context, event certificate.GeneratedEvent) {
	if !n.settings.Enabled {
		return
	}

	message := Message{
		EventID:        event.EventID,
		CSUID:          event.CSUID,
		RecipientID:    event.Record.RecipientID,
		RecipientName:  event.Recipient.DisplayName,
		RecipientEmail: event.Recipient.Email,
		SourceID:       event.Record.SourceID,
		SourceType:     event.Record.SourceType.String(),
		SourceTitle:    event.Source.Title,
		To:             n.settings.Recipients(event),
		Subject:        ExpandTemplate(n.settings.UserSubject, event),
		AdminSubject:   ExpandTemplate(n.settings.AdminSubject, event),
		Body:           ExpandTemplate(n.settings.Body, event),
		GeneratedAt:    event.OccurredAt.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(message)
	if err != nil {
		n.logger.Error("failed to marshal notification", zap.String("csuid", event.CSUID), zap.Error(err))
		return
	}

	err = n.channel.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Body:         body,
	})
	if err != nil {
		n.logger.Error("failed to publish notification",
			zap.String("queue", n.queue),
			zap.String("csuid", event.CSUID),
			zap.Error(err))
	}
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}
