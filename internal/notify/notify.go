// Package notify reports job outcomes to the outbound broker exchange and to
// Discord-compatible webhooks. Delivery is best-effort: failures are logged
// and dropped and never affect the job.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/ahoge-moe/Shiden/internal/config"
	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/version"
	"github.com/ahoge-moe/Shiden/pkg/httpclient"
)

const defaultTimeout = 30 * time.Second

// Outcome is the result of one job as reported to operators.
type Outcome struct {
	Job        models.Job
	OutputName string
	OutputSize int64
	Strategy   models.BurnStrategy
	Err        error
}

// Succeeded reports whether the job completed.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// StatusMessage returns the outbound broker message for a completed job.
func (o Outcome) StatusMessage() models.StatusMessage {
	show := o.Job.ShowName
	if show == "" {
		show = path.Base(o.Job.OutputFolder)
	}
	return models.StatusMessage{
		Show:     show,
		Episode:  o.OutputName,
		Filesize: o.OutputSize,
		Sub:      string(o.Strategy),
	}
}

// Publisher sends completion messages to the outbound broker.
type Publisher interface {
	Publish(ctx context.Context, msg models.StatusMessage) error
}

// MetadataLookup resolves show metadata for success embeds.
type MetadataLookup interface {
	Lookup(ctx context.Context, showName string) (*Metadata, error)
}

// Dispatcher delivers outcomes in the background.
type Dispatcher struct {
	client    *httpclient.Client
	webhooks  []config.WebhookConfig
	publisher Publisher
	metadata  MetadataLookup
	timeout   time.Duration
	docsURL   string
	footer    string
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher posting to cfg's webhooks with client.
func NewDispatcher(cfg config.NotificationConfig, client *httpclient.Client) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	footer := cfg.Footer
	if footer == "" {
		footer = version.ApplicationName + " " + version.Short()
	}
	return &Dispatcher{
		client:   client,
		webhooks: cfg.Webhooks,
		timeout:  timeout,
		docsURL:  cfg.ErrorDocsURL,
		footer:   footer,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// WithPublisher routes success messages through p before falling back to webhooks.
func (d *Dispatcher) WithPublisher(p Publisher) *Dispatcher {
	d.publisher = p
	return d
}

// WithMetadata enables show metadata in success embeds.
func (d *Dispatcher) WithMetadata(m MetadataLookup) *Dispatcher {
	d.metadata = m
	return d
}

// WithLogger sets the logger.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Notify delivers o in the background and returns immediately. Outcomes
// arriving after Close are dropped.
func (d *Dispatcher) Notify(o Outcome) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("notification dropped after shutdown", slog.String("input_file", o.Job.InputFile))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Deliver(ctx, o); err != nil {
			d.logger.Warn("notification failed",
				slog.String("input_file", o.Job.InputFile),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Close stops accepting outcomes and waits for in-flight deliveries until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notifications: %w", ctx.Err())
	}
}

// Deliver sends o synchronously. Completed jobs go to the outbound broker
// when one is configured, falling back to webhooks; failures always go to webhooks.
func (d *Dispatcher) Deliver(ctx context.Context, o Outcome) error {
	if !o.Succeeded() {
		return d.postAll(ctx, FailureEmbed(o, d.docsURL, d.footer, d.now()))
	}

	if d.publisher != nil {
		err := d.publisher.Publish(ctx, o.StatusMessage())
		if err == nil {
			d.logger.InfoContext(ctx, "published completion message", slog.String("episode", o.OutputName))
			return nil
		}
		d.logger.WarnContext(ctx, "publishing completion message failed, falling back to webhooks",
			slog.String("error", err.Error()),
		)
	}

	var meta *Metadata
	if d.metadata != nil && o.Job.ShowName != "" {
		m, err := d.metadata.Lookup(ctx, o.Job.ShowName)
		if err != nil {
			d.logger.WarnContext(ctx, "metadata unavailable",
				slog.String("show", o.Job.ShowName),
				slog.String("error", err.Error()),
			)
		} else {
			meta = m
		}
	}
	return d.postAll(ctx, SuccessEmbed(o, meta, d.footer, d.now()))
}

// postAll posts msg to every webhook, continuing past failures.
func (d *Dispatcher) postAll(ctx context.Context, msg WebhookMessage) error {
	var errs []error
	for _, w := range d.webhooks {
		if err := d.post(ctx, w, msg); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", w.Name, err))
			continue
		}
		d.logger.DebugContext(ctx, "webhook delivered", slog.String("webhook", w.Name))
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) post(ctx context.Context, w config.WebhookConfig, msg WebhookMessage) error {
	resp, err := d.client.PostJSON(ctx, string(w.URL), msg)
	if err != nil {
		// The webhook URL carries its token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return urlErr.Err
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &httpclient.StatusError{StatusCode: resp.StatusCode, URL: w.Name}
	}
	return nil
}
