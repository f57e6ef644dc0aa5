package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"yieldledger/core/events"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body.
	SignatureHeader = "X-Ledger-Signature"
	// EventHeader carries the event type.
	EventHeader = "X-Ledger-Event"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 64
	defaultDrainTime   = 10 * time.Second
)

var ErrDispatcherClosed = errors.New("webhook: dispatcher closed")

// Payload is the body posted for every ledger event.
type Payload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	EmittedAt  time.Time         `json:"emittedAt"`
	DeliveryID string            `json:"deliveryId"`
}

// Dispatcher forwards ledger events to an HTTP endpoint with retry and
// exponential backoff. It implements events.Emitter and never blocks the
// emitting goroutine: events arriving while the queue is full are dropped
// and counted.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	types       map[string]struct{}
	logger      *slog.Logger
	now         func() time.Time
	drainTime   time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	queue    chan delivery
	stop     chan struct{}
	stopOnce sync.Once
	closing  atomic.Bool
	wg       sync.WaitGroup
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

type delivery struct {
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEventTypes restricts delivery to the listed event types.
func WithEventTypes(types ...string) Option {
	return func(d *Dispatcher) {
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				d.types[t] = struct{}{}
			}
		}
	}
}

// WithQueueSize overrides the number of events buffered for delivery.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan delivery, n)
		}
	}
}

// WithDrainTimeout bounds how long Close keeps delivering queued events.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.drainTime = timeout
		}
	}
}

// WithLogger routes delivery failures to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		types:       make(map[string]struct{}),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		drainTime:   defaultDrainTime,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, defaultQueueSize),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops accepting events, delivers the ones already queued and waits
// for the worker to exit. Deliveries still pending after the drain timeout
// are abandoned and counted as dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		timer := time.AfterFunc(d.drainTime, d.cancel)
		d.wg.Wait()
		timer.Stop()
		d.cancel()
	})
}

// Emit implements events.Emitter.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	if len(d.types) > 0 {
		if _, ok := d.types[evt.EventType()]; !ok {
			return
		}
	}
	if err := d.Enqueue(evt); err != nil {
		d.dropped.Add(1)
	}
}

// Enqueue schedules evt for delivery without blocking.
func (d *Dispatcher) Enqueue(evt events.Event) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	payload := Payload{Type: evt.EventType(), EmittedAt: d.now(), DeliveryID: uuid.NewString()}
	if rec, ok := evt.(events.Attributed); ok {
		payload.Attributes = rec.Record().Attributes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if d.closing.Load() || d.ctx.Err() != nil {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- delivery{eventType: payload.Type, body: data}:
		return nil
	default:
		return fmt.Errorf("webhook: queue full, dropping %s", payload.Type)
	}
}

// Dropped returns how many events were discarded before delivery.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed returns how many deliveries exhausted their retries.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.queue:
			if d.ctx.Err() != nil {
				d.dropped.Add(1)
				continue
			}
			d.process(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.failed.Add(1)
			d.logger.Warn("webhook delivery abandoned", "event", job.eventType, "attempts", attempt, "error", err)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, job.eventType)
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
