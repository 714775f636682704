package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/pipeline"
)

var (
	// ErrForcedClose means an operator closed the connection with the
	// configured close message. The worker stops without retrying.
	ErrForcedClose = errors.New("connection closed by operator")
	// ErrRetriesExhausted means the reconnection policy gave up.
	ErrRetriesExhausted = errors.New("broker reconnection retries exhausted")
	// errStreamEnded means the server cancelled the consumer, e.g. because
	// the queue was deleted.
	errStreamEnded = errors.New("delivery stream ended")
)

// forcedClosePrefix is how the broker prefixes the reason of an
// administrative connection close.
const forcedClosePrefix = "CONNECTION_FORCED - "

// Consumer feeds jobs from the inbound queue to a JobProcessor, one at a time.
type Consumer struct {
	cfg     config.InboundConfig
	dial    Dialer
	backoff *Backoff
	runner  pipeline.JobProcessor
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) bool
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg config.InboundConfig, retry config.RetryConfig, dial Dialer, runner pipeline.JobProcessor) *Consumer {
	return &Consumer{
		cfg:     cfg,
		dial:    dial,
		backoff: NewBackoff(retry),
		runner:  runner,
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
}

// WithLogger sets the logger.
func (c *Consumer) WithLogger(logger *slog.Logger) *Consumer {
	c.logger = logger
	return c
}

// Run connects and consumes until ctx is cancelled (nil), an operator force
// closes the connection (ErrForcedClose) or reconnection retries run out
// (ErrRetriesExhausted).
func (c *Consumer) Run(ctx context.Context) error {
	for {
		c.logger.InfoContext(ctx, "connecting to broker", slog.Int("attempt", c.backoff.Attempt()+1))

		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrForcedClose) {
			c.logger.WarnContext(ctx, "connection closed by operator, not reconnecting", slog.String("error", err.Error()))
			return err
		}
		if connected {
			c.backoff.Reset()
		}

		delay, ok := c.backoff.Next()
		if !ok {
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
		c.logger.WarnContext(ctx, "broker connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
			slog.Int("retry", c.backoff.Attempt()),
		)
		if !c.sleep(ctx, delay) {
			return nil
		}
	}
}

// session runs one connection until it ends. connected reports whether the
// consumer got as far as receiving deliveries.
func (c *Consumer) session(ctx context.Context) (connected bool, err error) {
	conn, err := c.dial(string(c.cfg.URL))
	if err != nil {
		return false, fmt.Errorf("dialing broker: %w", err)
	}
	defer conn.Close()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return false, fmt.Errorf("setting prefetch: %w", err)
	}
	if _, err := ch.QueueDeclarePassive(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return false, fmt.Errorf("checking queue %q: %w", c.cfg.Queue, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deliveries, err := ch.ConsumeWithContext(sessCtx, c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("consuming %q: %w", c.cfg.Queue, err)
	}
	c.logger.InfoContext(ctx, "connection successful, waiting for jobs", slog.String("queue", c.cfg.Queue))

	// A closed connection cancels the job in flight.
	var closeErr atomic.Pointer[amqp.Error]
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case e, ok := <-closed:
			if ok && e != nil {
				closeErr.Store(e)
			}
			cancel()
		case <-sessCtx.Done():
		}
	}()

	for d := range deliveries {
		c.handle(sessCtx, d)
	}

	if ctx.Err() == nil {
		// Shuts the connection down if only the consumer was cancelled, so
		// the watcher always observes the close.
		_ = conn.Close()
	}
	cancel()
	<-watchDone

	if e := closeErr.Load(); e != nil {
		if c.isForcedClose(e) {
			return true, fmt.Errorf("%w: %s", ErrForcedClose, e.Reason)
		}
		return true, fmt.Errorf("connection closed: %w", e)
	}
	if ctx.Err() != nil {
		return true, nil
	}
	return true, errStreamEnded
}

// isForcedClose reports whether e is an operator closing the connection with
// the configured close message.
func (c *Consumer) isForcedClose(e *amqp.Error) bool {
	return e.Code == amqp.ConnectionForced && e.Reason == forcedClosePrefix+c.cfg.CloseMessage
}

// handle decodes one delivery, runs its job and settles it.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	id := d.MessageId
	if id == "" {
		id = uuid.NewString()
	}
	logger := c.logger.With(slog.String("message_id", id), slog.Uint64("delivery_tag", d.DeliveryTag))

	job, err := c.decode(d.Body)
	if err != nil {
		logger.WarnContext(ctx, "rejecting invalid message", slog.String("error", err.Error()))
		c.settle(logger, d, Reject)
		return
	}

	logger.InfoContext(ctx, "job received from broker",
		slog.String("input_file", job.InputFile),
		slog.String("output_folder", job.OutputFolder),
		slog.Bool("redelivered", d.Redelivered),
	)

	_, err = c.runner.Process(ctx, job, models.TriggerBroker)
	c.settle(logger, d, DispositionFor(err))
}

func (c *Consumer) decode(body []byte) (models.Job, error) {
	if a := c.cfg.Announcement; a.Enabled {
		return models.DecodeAnnouncement(body, a.InputRoot, a.OutputRoot)
	}
	return models.DecodeJob(body)
}

func (c *Consumer) settle(logger *slog.Logger, d amqp.Delivery, disp Disposition) {
	if err := disp.Apply(d); err != nil {
		logger.Error("failed to settle delivery",
			slog.String("disposition", disp.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("delivery settled", slog.String("disposition", disp.String()))
}

// sleepContext waits for d, returning false if ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
