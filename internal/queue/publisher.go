package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// publishChannel is the part of *amqp.Channel used by Publisher.
type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type dialFunc func(url string) (publishChannel, func(), error)

func dialChannel(url string) (publishChannel, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, func() {
		_ = ch.Close()
		_ = conn.Close()
	}, nil
}

// Publisher enqueues email jobs. A job counts as sent once the broker
// accepts it.
type Publisher struct {
	url  string
	dial dialFunc
	now  func() time.Time
	log  zerolog.Logger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{
		url:  url,
		dial: dialChannel,
		now:  time.Now,
		log:  log.With().Str("component", "email_publisher").Logger(),
	}
}

// SendTemplatedEmail publishes an EmailJob to EmailQueueName. Messages
// are persistent and carry a unique message id.
func (p *Publisher) SendTemplatedEmail(ctx context.Context, to, templateName string, data map[string]string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}
	body, err := json.Marshal(EmailJob{To: to, Template: templateName, Data: data, EnqueuedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	ch, closeFn, err := p.dial(p.url)
	if err != nil {
		p.log.Error().Err(err).Msg("rabbitmq dial failed")
		return err
	}
	defer closeFn()

	if _, err := ch.QueueDeclare(EmailQueueName, true, false, false, false, nil); err != nil {
		p.log.Error().Err(err).Msg("rabbitmq queue declare failed")
		return fmt.Errorf("declare %s: %w", EmailQueueName, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", EmailQueueName, false, false, pub); err != nil {
		p.log.Error().Err(err).Str("template", templateName).Msg("rabbitmq publish failed")
		return fmt.Errorf("publish email job: %w", err)
	}
	p.log.Debug().Str("message_id", pub.MessageId).Str("template", templateName).Msg("email job queued")
	return nil
}
