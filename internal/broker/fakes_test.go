package broker

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ahoge-moe/Shiden/internal/models"
	"github.com/ahoge-moe/Shiden/internal/pipeline"
)

// fakeAcknowledger records how deliveries were settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
	rejects []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects = append(a.rejects, tag)
	return nil
}

func (a *fakeAcknowledger) settled() (acked, nacked, rejected int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.nacked), len(a.rejects)
}

type fakeChannel struct {
	mu          sync.Mutex
	deliveries  chan amqp.Delivery
	stopOnce    sync.Once
	prefetch    int
	queueErr    error
	exchangeErr error
	publishErr  error
	published   []amqp.Publishing
	exchange    string
	routingKey  string
	closed      bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
}

func (c *fakeChannel) stop() {
	c.stopOnce.Do(func() { close(c.deliveries) })
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name}, c.queueErr
}

func (c *fakeChannel) ConsumeWithContext(ctx context.Context, _, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	go func() {
		<-ctx.Done()
		c.stop()
	}()
	return c.deliveries, nil
}

func (c *fakeChannel) ExchangeDeclarePassive(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	return c.exchangeErr
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.exchange = exchange
	c.routingKey = key
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConnection struct {
	ch        *fakeChannel
	mu        sync.Mutex
	notify    chan *amqp.Error
	closeOnce sync.Once
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{ch: newFakeChannel()}
}

func (c *fakeConnection) Channel() (Channel, error) {
	return c.ch, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = receiver
	return receiver
}

func (c *fakeConnection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.notify != nil {
			close(c.notify)
		}
		c.ch.stop()
	})
	return nil
}

// serverClose simulates the broker closing the connection with e.
func (c *fakeConnection) serverClose(e *amqp.Error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.notify != nil {
			c.notify <- e
			close(c.notify)
		}
		c.ch.stop()
	})
}

// dialer hands out conns in order, then fails.
type dialer struct {
	mu    sync.Mutex
	conns []*fakeConnection
	calls int
	err   error
}

func (d *dialer) Dial(string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		if d.err == nil {
			d.err = amqp.ErrClosed
		}
		return nil, d.err
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type processFunc func(ctx context.Context, job models.Job) error

type fakeProcessor struct {
	mu   sync.Mutex
	jobs []models.Job
	fn   processFunc
}

func (p *fakeProcessor) Process(ctx context.Context, job models.Job, trigger models.Trigger) (pipeline.Result, error) {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()
	if p.fn != nil {
		return pipeline.Result{}, p.fn(ctx, job)
	}
	return pipeline.Result{OutputName: job.OutputName()}, nil
}

func (p *fakeProcessor) Jobs() []models.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Job(nil), p.jobs...)
}
