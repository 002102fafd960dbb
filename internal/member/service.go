package member

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	internal "github.com/frahmantamala/member-directory/internal"
	"github.com/frahmantamala/member-directory/internal/audit"
	"github.com/frahmantamala/member-directory/internal/auth"
)

// AuditRecorder is the slice of the audit emitter the pipeline needs.
// Recording is fire-and-forget; a full or failing audit sink never fails a
// request.
type AuditRecorder interface {
	Record(entry audit.Entry)
}

type ServiceAPI interface {
	Register(actor *auth.User, dto *RegisterMemberDTO) (*Member, error)
	Update(actor *auth.User, id int64, dto *UpdateMemberDTO) (*Member, error)
	Delete(actor *auth.User, id int64) error
	Get(actor *auth.User, id int64) (*Member, error)
	List(actor *auth.User, params ListParams) ([]*Member, int64, error)
}

type Service struct {
	repo      RepositoryAPI
	evaluator *auth.Evaluator
	recorder  AuditRecorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, evaluator *auth.Evaluator, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

func principalName(actor *auth.User) string {
	if actor == nil || actor.Username == "" {
		return SystemPrincipal
	}
	return actor.Username
}

// Register runs the write pipeline in fixed order: validate, uniqueness,
// authorize, assemble, persist, audit. A stage failure stops the pipeline and
// the audit record reflects the stage that rejected the request.
func (s *Service) Register(actor *auth.User, dto *RegisterMemberDTO) (*Member, error) {
	principal := principalName(actor)

	if err := dto.Validate(); err != nil {
		s.audit(audit.ActionMemberRegister, "", principal, audit.StatusFailure, err.Error(), nil)
		return nil, err
	}

	normalized := NormalizeEmail(dto.Email)
	existing, err := s.repo.FindByEmail(normalized)
	if err != nil && !errors.Is(err, ErrMemberNotFound) {
		// fail closed: if the uniqueness check cannot run, the write is refused
		s.logger.Error("uniqueness check failed", "email", normalized, "error", err)
		appErr := internal.NewUnavailableError("unable to verify email uniqueness", err)
		s.audit(audit.ActionMemberRegister, "", principal, audit.StatusFailure, appErr.Message, nil)
		return nil, appErr
	}
	if existing != nil {
		appErr := internal.NewConflictError("email", normalized)
		s.audit(audit.ActionMemberRegister, "", principal, audit.StatusFailure, appErr.Message, audit.Details{"email": normalized})
		return nil, appErr
	}

	if !s.evaluator.AuthorizeUser(actor, auth.PermMemberCreate) {
		appErr := internal.NewForbiddenError("insufficient permission to register members", internal.ErrCodeInsufficientPermission)
		s.audit(audit.ActionMemberRegister, "", principal, audit.StatusFailure, appErr.Message, nil)
		return nil, appErr
	}

	m := AssembleMember(dto, principal, s.now())

	if err := s.repo.Create(m); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			appErr := internal.NewConflictError("email", normalized)
			s.audit(audit.ActionMemberRegister, "", principal, audit.StatusFailure, appErr.Message, audit.Details{"email": normalized})
			return nil, appErr
		}
		s.logger.Error("failed to persist member", "email", normalized, "error", err)
		appErr := internal.NewPersistFailedError("failed to save member", err)
		s.audit(audit.ActionMemberRegister, "", principal, audit.StatusFailure, appErr.Message, nil)
		return nil, appErr
	}

	s.audit(audit.ActionMemberRegister, fmt.Sprintf("%d", m.ID), principal, audit.StatusSuccess, "", audit.Details{"email": m.Email})
	return m, nil
}

// Update follows the same stage order as Register; the uniqueness stage only
// runs when the update actually changes the email.
func (s *Service) Update(actor *auth.User, id int64, dto *UpdateMemberDTO) (*Member, error) {
	principal := principalName(actor)
	entityID := fmt.Sprintf("%d", id)

	if dto.Empty() {
		appErr := internal.NewValidationError("no fields to update", internal.ErrCodeValidationFailed)
		s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, appErr.Message, nil)
		return nil, appErr
	}
	if err := dto.Validate(); err != nil {
		s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, err.Error(), nil)
		return nil, err
	}

	current, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, internal.NewNotFoundError("member not found", internal.ErrCodeMemberNotFound)
		}
		return nil, internal.NewPersistFailedError("failed to load member", err)
	}

	if dto.Email != nil {
		normalized := NormalizeEmail(*dto.Email)
		if normalized != current.Email {
			existing, err := s.repo.FindByEmail(normalized)
			if err != nil && !errors.Is(err, ErrMemberNotFound) {
				s.logger.Error("uniqueness check failed", "email", normalized, "error", err)
				appErr := internal.NewUnavailableError("unable to verify email uniqueness", err)
				s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, appErr.Message, nil)
				return nil, appErr
			}
			if existing != nil && existing.ID != id {
				appErr := internal.NewConflictError("email", normalized)
				s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, appErr.Message, audit.Details{"email": normalized})
				return nil, appErr
			}
		}
	}

	if !s.evaluator.AuthorizeUser(actor, auth.PermMemberUpdate) {
		appErr := internal.NewForbiddenError("insufficient permission to update members", internal.ErrCodeInsufficientPermission)
		s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, appErr.Message, nil)
		return nil, appErr
	}

	ApplyUpdate(current, dto, principal, s.now())

	if err := s.repo.Update(current); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			appErr := internal.NewConflictError("email", current.Email)
			s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, appErr.Message, nil)
			return nil, appErr
		}
		s.logger.Error("failed to update member", "member_id", id, "error", err)
		appErr := internal.NewPersistFailedError("failed to update member", err)
		s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusFailure, appErr.Message, nil)
		return nil, appErr
	}

	s.audit(audit.ActionMemberUpdate, entityID, principal, audit.StatusSuccess, "", nil)
	return current, nil
}

func (s *Service) Delete(actor *auth.User, id int64) error {
	principal := principalName(actor)
	entityID := fmt.Sprintf("%d", id)

	if !s.evaluator.AuthorizeUser(actor, auth.PermMemberDelete) {
		appErr := internal.NewForbiddenError("insufficient permission to delete members", internal.ErrCodeInsufficientPermission)
		s.audit(audit.ActionMemberDelete, entityID, principal, audit.StatusFailure, appErr.Message, nil)
		return appErr
	}

	if _, err := s.repo.GetByID(id); err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return internal.NewNotFoundError("member not found", internal.ErrCodeMemberNotFound)
		}
		return internal.NewPersistFailedError("failed to load member", err)
	}

	if err := s.repo.Delete(id); err != nil {
		s.logger.Error("failed to delete member", "member_id", id, "error", err)
		appErr := internal.NewPersistFailedError("failed to delete member", err)
		s.audit(audit.ActionMemberDelete, entityID, principal, audit.StatusFailure, appErr.Message, nil)
		return appErr
	}

	s.audit(audit.ActionMemberDelete, entityID, principal, audit.StatusSuccess, "", nil)
	return nil
}

func (s *Service) Get(actor *auth.User, id int64) (*Member, error) {
	if !s.evaluator.AuthorizeUser(actor, auth.PermMemberRead) {
		return nil, internal.NewForbiddenError("insufficient permission to view members", internal.ErrCodeInsufficientPermission)
	}
	m, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, internal.NewNotFoundError("member not found", internal.ErrCodeMemberNotFound)
		}
		return nil, internal.NewPersistFailedError("failed to load member", err)
	}
	return m, nil
}

func (s *Service) List(actor *auth.User, params ListParams) ([]*Member, int64, error) {
	if !s.evaluator.AuthorizeUser(actor, auth.PermMemberRead) {
		return nil, 0, internal.NewForbiddenError("insufficient permission to view members", internal.ErrCodeInsufficientPermission)
	}
	members, total, err := s.repo.List(params)
	if err != nil {
		return nil, 0, internal.NewPersistFailedError("failed to list members", err)
	}
	return members, total, nil
}

// audit emits exactly one record per terminal pipeline outcome. Read paths do
// not audit.
func (s *Service) audit(action, entityID, principal string, status audit.Status, errMsg string, details audit.Details) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(audit.Entry{
		Action:       action,
		EntityType:   "member",
		EntityID:     entityID,
		Principal:    principal,
		Status:       status,
		ErrorMessage: errMsg,
		Details:      details,
	})
}
