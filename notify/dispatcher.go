package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"louyass/metrics"

	"go.uber.org/zap"
)

var (
	// ErrDispatcherStopped is returned when enqueueing after Stop
	ErrDispatcherStopped = errors.New("mail dispatcher is not running")
	// ErrQueueFull is returned when the mail queue has no free slot
	ErrQueueFull = errors.New("mail queue is full")
)

// Dispatcher delivers e-mails in the background with a fixed set of workers
// reading from a bounded queue. Enqueue never blocks.
type Dispatcher struct {
	mailer      Mailer
	workers     int
	sendTimeout time.Duration
	queue       chan Email
	wg          sync.WaitGroup
	logger      *zap.SugaredLogger

	mu      sync.RWMutex
	running bool
	stopped bool
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing.
func NewDispatcher(mailer Mailer, workers, queueSize int, logger *zap.SugaredLogger) *Dispatcher {
	if mailer == nil {
		panic("mailer is required")
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	return &Dispatcher{
		mailer:      mailer,
		workers:     workers,
		sendTimeout: 30 * time.Second,
		queue:       make(chan Email, queueSize),
		logger:      logger,
	}
}

// Start launches the workers. A stopped dispatcher cannot be restarted.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	if d.stopped {
		d.logger.Warn("Mail dispatcher already stopped, not restarting")
		return
	}
	d.running = true
	d.logger.Infow("Starting mail dispatcher", "workers", d.workers, "queue_size", cap(d.queue))
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop closes the queue and waits for queued mails to be delivered, up to
// the context deadline
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Infow("Mail dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Errorw("Mail dispatcher shutdown timed out", "pending", len(d.queue))
		return ctx.Err()
	}
}

// Enqueue schedules an e-mail for delivery
func (d *Dispatcher) Enqueue(email Email) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- email:
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		metrics.NotificationsFailed.WithLabelValues("email", "queue_full").Inc()
		return ErrQueueFull
	}
}

// Pending returns the number of queued mails
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for email := range d.queue {
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		d.deliver(id, email)
	}
}

func (d *Dispatcher) deliver(id int, email Email) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Mail delivery panicked", "worker_id", id, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	if err := d.mailer.Send(ctx, email); err != nil {
		d.logger.Warnw("Failed to deliver e-mail", "worker_id", id, "to", email.To, "subject", email.Subject, "error", err)
	}
}
