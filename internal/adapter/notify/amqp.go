package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/prepfire/internal/core/domain"
)

const (
	DefaultExchange   = "notifications"
	DailyAlertRouting = "email.daily_prep_alert"
	publishTimeout    = 5 * time.Second
)

// channel is the slice of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// AMQPPublisher hands daily alerts to the email service through a topic
// exchange. With publisher confirms on, a nack is reported as a failed send.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	log      *slog.Logger
}

func DialAMQP(url, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	p, err := newAMQPPublisher(ch, exchange, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, log: log.With("component", "amqp_notifier")}, nil
}

func (p *AMQPPublisher) SendDailyAlert(ctx context.Context, alert domain.DailyAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,        // exchange
		DailyAlertRouting, // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"tenant_id": alert.TenantID,
				"date":      alert.Date,
			},
			Body: body,
		})
	if err != nil {
		return fmt.Errorf("publish daily alert: %w", err)
	}

	// nil when the channel is not in confirm mode
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("await confirm: %w", err)
		}
		if !acked {
			return errors.New("broker rejected daily alert")
		}
	}

	p.log.Debug("daily alert published", "tenant_id", alert.TenantID, "date", alert.Date, "routing_key", DailyAlertRouting)
	return nil
}

func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
