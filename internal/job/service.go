package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	internal "github.com/frahmantamala/member-directory/internal"
	"github.com/frahmantamala/member-directory/internal/audit"
	"github.com/frahmantamala/member-directory/internal/auth"
	"github.com/frahmantamala/member-directory/internal/core/events"
)

type AuditRecorder interface {
	Record(entry audit.Entry)
}

type ServiceAPI interface {
	Submit(actor *auth.User, dto *CreateJobDTO) (*Job, error)
	Get(actor *auth.User, id string) (*Job, error)
	List(actor *auth.User, params ListParams) ([]*Job, int64, error)
	Cancel(actor *auth.User, id string) (*Job, error)
}

type Service struct {
	repo      RepositoryAPI
	evaluator *auth.Evaluator
	recorder  AuditRecorder
	bus       *events.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, evaluator *auth.Evaluator, recorder AuditRecorder, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		recorder:  recorder,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit enqueues a new job in PENDING. The worker command picks it up; the
// submitting request never waits for processing.
func (s *Service) Submit(actor *auth.User, dto *CreateJobDTO) (*Job, error) {
	if !s.evaluator.AuthorizeUser(actor, auth.PermJobManage) {
		return nil, internal.NewForbiddenError("insufficient permission to submit jobs", internal.ErrCodeInsufficientPermission)
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var userID int64
	if actor != nil {
		userID = actor.ID
	}

	j := &Job{
		ID:         uuid.New().String(),
		Type:       dto.Type,
		Status:     StatusPending,
		UserID:     userID,
		TotalItems: len(dto.Items),
		Payload:    Payload(dto.Items),
		CreatedAt:  s.now(),
	}

	if err := s.repo.Create(j); err != nil {
		s.logger.Error("failed to enqueue job", "job_type", j.Type, "error", err)
		return nil, internal.NewPersistFailedError("failed to enqueue job", err)
	}

	s.logger.Info("job enqueued", "job_id", j.ID, "job_type", j.Type, "total_items", j.TotalItems)
	return j, nil
}

func (s *Service) Get(actor *auth.User, id string) (*Job, error) {
	if !s.evaluator.AuthorizeUser(actor, auth.PermJobRead) {
		return nil, internal.NewForbiddenError("insufficient permission to view jobs", internal.ErrCodeInsufficientPermission)
	}
	j, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, internal.NewNotFoundError("job not found", internal.ErrCodeJobNotFound)
		}
		return nil, internal.NewPersistFailedError("failed to load job", err)
	}
	return j, nil
}

func (s *Service) List(actor *auth.User, params ListParams) ([]*Job, int64, error) {
	if !s.evaluator.AuthorizeUser(actor, auth.PermJobRead) {
		return nil, 0, internal.NewForbiddenError("insufficient permission to view jobs", internal.ErrCodeInsufficientPermission)
	}
	jobs, total, err := s.repo.List(params)
	if err != nil {
		return nil, 0, internal.NewPersistFailedError("failed to list jobs", err)
	}
	return jobs, total, nil
}

// Cancel transitions a non-terminal job to CANCELLED. Terminal jobs are
// immutable and cancelling them is rejected.
func (s *Service) Cancel(actor *auth.User, id string) (*Job, error) {
	if !s.evaluator.AuthorizeUser(actor, auth.PermJobManage) {
		return nil, internal.NewForbiddenError("insufficient permission to cancel jobs", internal.ErrCodeInsufficientPermission)
	}

	principal := "system"
	if actor != nil && actor.Username != "" {
		principal = actor.Username
	}

	// the guarded write can lose to the worker moving PENDING to IN_PROGRESS,
	// in which case the job is still cancellable and we reload and retry
	for attempt := 0; attempt < 2; attempt++ {
		j, err := s.repo.GetByID(id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return nil, internal.NewNotFoundError("job not found", internal.ErrCodeJobNotFound)
			}
			return nil, internal.NewPersistFailedError("failed to load job", err)
		}

		from := j.Status
		if err := j.Transition(StatusCancelled, s.now()); err != nil {
			appErr := internal.NewConflictError("status", string(j.Status))
			appErr.Code = internal.ErrCodeInvalidJobTransition
			appErr.Message = fmt.Sprintf("job in status %s cannot be cancelled", j.Status)
			s.audit(audit.ActionJobCancel, j.ID, principal, audit.StatusFailure, appErr.Message)
			return nil, appErr
		}

		if err := s.repo.UpdateStatus(j, from); err != nil {
			if errors.Is(err, ErrStaleJob) {
				continue
			}
			s.logger.Error("failed to cancel job", "job_id", j.ID, "error", err)
			appErr := internal.NewPersistFailedError("failed to cancel job", err)
			s.audit(audit.ActionJobCancel, j.ID, principal, audit.StatusFailure, appErr.Message)
			return nil, appErr
		}

		if s.bus != nil {
			_ = s.bus.Publish(context.Background(), events.NewJobCancelledEvent(j.ID, j.SuccessfulItems, j.FailedItems))
		}
		s.audit(audit.ActionJobCancel, j.ID, principal, audit.StatusSuccess, "")
		return j, nil
	}

	appErr := internal.NewPersistFailedError("job status changed concurrently", ErrStaleJob)
	s.audit(audit.ActionJobCancel, id, principal, audit.StatusFailure, appErr.Message)
	return nil, appErr
}

func (s *Service) audit(action, entityID, principal string, status audit.Status, errMsg string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(audit.Entry{
		Action:       action,
		EntityType:   "job",
		EntityID:     entityID,
		Principal:    principal,
		Status:       status,
		ErrorMessage: errMsg,
	})
}
