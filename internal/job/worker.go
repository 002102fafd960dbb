package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/member-directory/internal/auth"
	"github.com/frahmantamala/member-directory/internal/core/events"
	"github.com/frahmantamala/member-directory/internal/member"
)

// DirectoryAPI is the slice of the member service the worker drives. Items go
// through the same pipeline as interactive requests so validation, uniqueness
// and audit behave identically.
type DirectoryAPI interface {
	Register(actor *auth.User, dto *member.RegisterMemberDTO) (*member.Member, error)
	Delete(actor *auth.User, id int64) error
}

// MemberLookupAPI resolves bulk-delete emails to member ids.
type MemberLookupAPI interface {
	FindByEmail(email string) (*member.Member, error)
}

// workerActor is the principal for background processing. It carries the
// wildcard so item processing is never blocked on role lookups for a user who
// may have been deactivated since submitting the job.
var workerActor = &auth.User{
	Username: member.SystemPrincipal,
	IsActive: true,
	Roles: []auth.Role{
		{Name: "SYSTEM", Permissions: []string{auth.PermSystemAdmin.String()}},
	},
}

type Worker struct {
	jobs         RepositoryAPI
	directory    DirectoryAPI
	lookup       MemberLookupAPI
	bus          *events.EventBus
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

func NewWorker(jobs RepositoryAPI, directory DirectoryAPI, lookup MemberLookupAPI, bus *events.EventBus, logger *slog.Logger, pollInterval time.Duration, batchSize int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Worker{
		jobs:         jobs,
		directory:    directory,
		lookup:       lookup,
		bus:          bus,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// Run polls for pending jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("job worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce drains one batch of pending jobs. Split out from Run so tests and
// one-shot invocations can process without the poll loop.
func (w *Worker) RunOnce(ctx context.Context) {
	pending, err := w.jobs.NextPending(w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch pending jobs", "error", err)
		return
	}

	for _, j := range pending {
		if ctx.Err() != nil {
			return
		}
		w.Process(ctx, j)
	}
}

// Process runs a single job to a terminal state. A job cancelled while in
// flight stops at the next item boundary and keeps the counters accumulated
// so far.
func (w *Worker) Process(ctx context.Context, j *Job) {
	if err := j.Transition(StatusInProgress, w.now()); err != nil {
		// picked up after a cancel won the race; nothing to do
		w.logger.Info("skipping job, not startable", "job_id", j.ID, "status", j.Status)
		return
	}
	if err := w.jobs.UpdateStatus(j, StatusPending); err != nil {
		if errors.Is(err, ErrStaleJob) {
			w.logger.Info("skipping job, cancelled before pickup", "job_id", j.ID)
			return
		}
		w.logger.Error("failed to mark job in progress", "job_id", j.ID, "error", err)
		return
	}
	if w.bus != nil {
		_ = w.bus.Publish(ctx, events.NewJobStartedEvent(j.ID, string(j.Type), j.TotalItems))
	}

	for _, item := range j.Payload {
		if ctx.Err() != nil {
			w.finish(ctx, j, StatusFailed, "worker shut down mid-job")
			return
		}
		if w.cancelled(j.ID) {
			w.logger.Info("job cancelled mid-run", "job_id", j.ID, "processed", j.ProcessedItems)
			return
		}

		w.processItem(j, item)

		if err := w.jobs.UpdateProgress(j); err != nil {
			w.logger.Error("failed to persist job progress", "job_id", j.ID, "error", err)
		}
		if w.bus != nil {
			_ = w.bus.Publish(ctx, events.NewJobProgressEvent(j.ID, j.ProcessedItems, j.TotalItems, j.Progress))
		}
	}

	w.finish(ctx, j, StatusCompleted, "")
}

func (w *Worker) processItem(j *Job, item map[string]string) {
	switch j.Type {
	case TypeBulkDelete:
		email := member.NormalizeEmail(item["email"])
		m, err := w.lookup.FindByEmail(email)
		if err != nil {
			reason := "lookup failed"
			if errors.Is(err, member.ErrMemberNotFound) {
				reason = "no member with this email"
			}
			j.RecordResult(ResultItem{Identifier: email, Reason: reason}, false)
			return
		}
		if err := w.directory.Delete(workerActor, m.ID); err != nil {
			j.RecordResult(ResultItem{Identifier: email, MemberID: m.ID, Reason: err.Error()}, false)
			return
		}
		j.RecordResult(ResultItem{Identifier: email, MemberID: m.ID}, true)

	case TypeExcelUpload:
		dto := &member.RegisterMemberDTO{
			Name:  item["name"],
			Email: item["email"],
			Phone: item["phone"],
		}
		m, err := w.directory.Register(workerActor, dto)
		if err != nil {
			j.RecordResult(ResultItem{Identifier: member.NormalizeEmail(item["email"]), Reason: err.Error()}, false)
			return
		}
		j.RecordResult(ResultItem{Identifier: m.Email, MemberID: m.ID}, true)

	default:
		j.RecordResult(ResultItem{Identifier: string(j.Type), Reason: "unknown job type"}, false)
	}
}

func (w *Worker) cancelled(id string) bool {
	current, err := w.jobs.GetByID(id)
	if err != nil {
		return false
	}
	return current.Status == StatusCancelled
}

func (w *Worker) finish(ctx context.Context, j *Job, target Status, reason string) {
	j.ErrorMessage = reason
	if err := j.Transition(target, w.now()); err != nil {
		w.logger.Error("illegal terminal transition", "job_id", j.ID, "status", j.Status, "target", target)
		return
	}
	if err := w.jobs.UpdateStatus(j, StatusInProgress); err != nil {
		if errors.Is(err, ErrStaleJob) {
			// cancel landed after the last item; counters are already persisted
			w.logger.Info("job cancelled before finalize", "job_id", j.ID)
			return
		}
		w.logger.Error("failed to finalize job", "job_id", j.ID, "error", err)
		return
	}
	if w.bus == nil {
		return
	}
	switch target {
	case StatusCompleted:
		_ = w.bus.Publish(ctx, events.NewJobCompletedEvent(j.ID, j.SuccessfulItems, j.FailedItems))
	case StatusFailed:
		_ = w.bus.Publish(ctx, events.NewJobFailedEvent(j.ID, j.SuccessfulItems, j.FailedItems, reason))
	}
}
