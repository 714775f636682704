package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/notify"
	"github.com/ahoge-moe/Shiden/internal/version"
)

const defaultPublishTimeout = 10 * time.Second

var _ notify.Publisher = (*Publisher)(nil)

// Publisher sends completion messages to the outbound exchange. Each publish
// uses its own short-lived connection.
type Publisher struct {
	cfg    config.OutboundConfig
	dial   Dialer
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg config.OutboundConfig, dial Dialer) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPublishTimeout
	}
	return &Publisher{cfg: cfg, dial: dial, logger: slog.Default()}
}

// WithLogger sets the logger.
func (p *Publisher) WithLogger(logger *slog.Logger) *Publisher {
	p.logger = logger
	return p
}

// Publish sends msg. The exchange must already exist.
func (p *Publisher) Publish(ctx context.Context, msg models.StatusMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding status message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dial(string(p.cfg.URL))
	if err != nil {
		return fmt.Errorf("dialing outbound broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclarePassive(p.cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("checking exchange %q: %w", p.cfg.Exchange, err)
	}

	err = ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		AppId:        version.UserAgent(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing to %q: %w", p.cfg.Exchange, err)
	}

	p.logger.InfoContext(ctx, "published completion message",
		slog.String("exchange", p.cfg.Exchange),
		slog.String("show", msg.Show),
		slog.String("episode", msg.Episode),
	)
	return nil
}
