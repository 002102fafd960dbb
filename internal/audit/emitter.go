package audit

import (
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultQueueSize = 1024

// Emitter records audit entries without ever blocking the caller. Entries go
// through a bounded queue drained by a single background worker; when the
// queue is full the newest entry is dropped and counted. Delivery is
// best-effort: Close drains what it can within the timeout and in-flight
// entries may be lost at shutdown.
type Emitter struct {
	repo    RepositoryAPI
	logger  *slog.Logger
	queue   chan Entry
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
}

func NewEmitter(repo RepositoryAPI, logger *slog.Logger, queueSize int) *Emitter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Emitter{
		repo:   repo,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Record enqueues an entry. It returns immediately in every case: queue full
// and emitter closed both drop the entry rather than block.
func (e *Emitter) Record(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if e.closed.Load() {
		e.dropped.Add(1)
		return
	}

	select {
	case e.queue <- entry:
	default:
		n := e.dropped.Add(1)
		e.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"dropped_total", n)
	}
}

// Dropped returns how many entries were discarded since startup.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close stops intake and drains queued entries best-effort until the timeout.
func (e *Emitter) Close(timeout time.Duration) {
	if e.closed.Swap(true) {
		return
	}
	close(e.stop)

	select {
	case <-e.done:
	case <-time.After(timeout):
		e.logger.Warn("audit emitter close timed out, in-flight entries lost")
	}
}

func (e *Emitter) run() {
	for {
		select {
		case entry := <-e.queue:
			e.persist(entry)
		case <-e.stop:
			e.drain()
			close(e.done)
			return
		}
	}
}

func (e *Emitter) drain() {
	for {
		select {
		case entry := <-e.queue:
			e.persist(entry)
		default:
			return
		}
	}
}

// persist swallows repository failures; audit emission must never surface an
// error to the pipeline.
func (e *Emitter) persist(entry Entry) {
	if err := e.repo.Create(&entry); err != nil {
		e.logger.Error("failed to persist audit entry",
			"error", err,
			"action", entry.Action,
			"entity_id", entry.EntityID)
	}
}
