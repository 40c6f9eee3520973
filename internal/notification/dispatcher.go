package notification

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	BaseBackoff    time.Duration
	AttemptTimeout time.Duration
	AdminEmail     string
}

type job struct {
	event   EventType
	orderID uuid.UUID
	msg     Message
}

// Dispatcher delivers notification mail off the request path. Delivery is
// best effort: a full queue drops messages and failures are only logged.
type Dispatcher struct {
	sender Sender
	cfg    Config
	jobs   chan job
}

func NewDispatcher(sender Sender, cfg Config) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers * 3
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		jobs:   make(chan job, cfg.QueueSize),
	}
}

// Enqueue never blocks. It reports false when at least one message of the
// event was dropped.
func (d *Dispatcher) Enqueue(e Event) bool {
	ok := true
	for _, msg := range Messages(e, d.cfg.AdminEmail) {
		select {
		case d.jobs <- job{event: e.Type, orderID: e.Order.ID, msg: msg}:
		default:
			ok = false
			log.Warn().Str("event", string(e.Type)).Stringer("order_id", e.Order.ID).Msg("notification queue full, dropping message")
		}
	}
	return ok
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned. Messages still queued at that point are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 1; i <= d.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.workerLoop(ctx, id)
		}(i)
	}
	log.Info().Int("workers", d.cfg.Workers).Msg("notification dispatcher started")

	wg.Wait()
	if n := len(d.jobs); n > 0 {
		log.Warn().Int("pending", n).Msg("notification dispatcher stopped with undelivered messages")
	}
	log.Info().Msg("notification dispatcher stopped")
	return nil
}

func (d *Dispatcher) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.deliver(ctx, id, j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, j job) {
	logger := log.With().
		Int("worker", worker).
		Str("event", string(j.event)).
		Stringer("order_id", j.orderID).
		Strs("to", j.msg.To).
		Logger()

	backoff := d.cfg.BaseBackoff
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		err := d.sender.Send(attemptCtx, j.msg)
		cancel()
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("notification sent")
			return
		}
		if attempt >= d.cfg.MaxAttempts {
			logger.Error().Err(err).Int("attempt", attempt).Msg("notification failed, giving up")
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("notification failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
