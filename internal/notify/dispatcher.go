package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Emitter delivers one message to an external channel (SMS gateway, mail
// relay). Implementations are best-effort; the core never depends on them
// succeeding.
type Emitter interface {
	Send(destination, subject, body string) error
}

type Message struct {
	Destination string
	Subject     string
	Body        string
	CreatedAt   time.Time
}

// Dispatcher fans messages out to a worker pool. Enqueue never blocks the
// caller: if the queue is full the message is dropped and logged. It is
// only ever invoked after a financial mutation has committed, so a
// delivery failure cannot roll anything back.
type Dispatcher struct {
	emitter  Emitter
	queue    chan Message
	shutdown chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewDispatcher(emitter Emitter, workers int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	d := &Dispatcher{
		emitter:  emitter,
		queue:    make(chan Message, 1000),
		shutdown: make(chan struct{}),
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *Dispatcher) Enqueue(destination, subject, body string) {
	msg := Message{Destination: destination, Subject: subject, Body: body, CreatedAt: time.Now()}
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message",
			slog.String("destination", destination),
			slog.String("subject", subject))
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.queue:
			if err := d.emitter.Send(msg.Destination, msg.Subject, msg.Body); err != nil {
				d.logger.Error("notification delivery failed",
					slog.String("destination", msg.Destination),
					slog.String("subject", msg.Subject),
					slog.String("error", err.Error()),
					slog.Int("worker_id", id))
			}
		case <-d.shutdown:
			return
		}
	}
}

func (d *Dispatcher) Shutdown(ctx context.Context) error {
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogEmitter writes deliveries to the log. Used when no real gateway is
// configured.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e *LogEmitter) Send(destination, subject, body string) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		slog.String("destination", destination),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}

// MockEmitter records deliveries for tests.
type MockEmitter struct {
	mu   sync.Mutex
	Sent []Message
}

func (m *MockEmitter) Send(destination, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Message{Destination: destination, Subject: subject, Body: body})
	return nil
}

func (m *MockEmitter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
