package job

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Type string

const (
	TypeBulkDelete  Type = "BULK_DELETE"
	TypeExcelUpload Type = "EXCEL_UPLOAD"
)

func (t Type) Valid() bool {
	return t == TypeBulkDelete || t == TypeExcelUpload
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// validTransitions encodes the lifecycle. COMPLETED, FAILED and CANCELLED are
// terminal; nothing transitions out of them.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStaleJob          = errors.New("job status changed concurrently")
)

// ResultItem records the outcome of one processed item in submission order.
type ResultItem struct {
	Identifier string `json:"identifier"`
	MemberID   int64  `json:"member_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type ResultList []ResultItem

func (r ResultList) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *ResultList) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return errors.New("unsupported type for job results")
	}
}

// Payload holds the submitted work items, e.g. emails to bulk delete or
// pre-parsed upload rows.
type Payload []map[string]string

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return errors.New("unsupported type for job payload")
	}
}

type Job struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	Type              Type       `json:"type" gorm:"not null"`
	Status            Status     `json:"status" gorm:"not null"`
	UserID            int64      `json:"user_id" gorm:"column:user_id"`
	TotalItems        int        `json:"total_items"`
	ProcessedItems    int        `json:"processed_items"`
	SuccessfulItems   int        `json:"successful_items"`
	FailedItems       int        `json:"failed_items"`
	Progress          int        `json:"progress"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	Payload           Payload    `json:"-" gorm:"type:jsonb"`
	SuccessfulResults ResultList `json:"successful_results,omitempty" gorm:"type:jsonb"`
	FailedResults     ResultList `json:"failed_results,omitempty" gorm:"type:jsonb"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// Transition moves the job to the target status, enforcing the lifecycle.
// Terminal statuses are immutable; any transition out of them is rejected.
func (j *Job) Transition(target Status, now time.Time) error {
	if !j.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, target)
	}
	j.Status = target
	switch target {
	case StatusInProgress:
		j.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = &now
	}
	return nil
}

// RecordResult tallies one processed item and recomputes progress. Results
// keep submission order within their outcome list.
func (j *Job) RecordResult(item ResultItem, succeeded bool) {
	j.ProcessedItems++
	if succeeded {
		j.SuccessfulItems++
		j.SuccessfulResults = append(j.SuccessfulResults, item)
	} else {
		j.FailedItems++
		j.FailedResults = append(j.FailedResults, item)
	}
	if j.TotalItems > 0 {
		j.Progress = j.ProcessedItems * 100 / j.TotalItems
		if j.Progress > 100 {
			j.Progress = 100
		}
	}
}

// RepositoryAPI splits writes so the status column is only ever changed
// through the guarded path. UpdateProgress persists counters and results
// without touching status; UpdateStatus writes the full row only while the
// stored status still equals from, returning ErrStaleJob otherwise. A cancel
// landing between two worker writes therefore can never be overwritten.
type RepositoryAPI interface {
	Create(j *Job) error
	UpdateProgress(j *Job) error
	UpdateStatus(j *Job, from Status) error
	GetByID(id string) (*Job, error)
	List(params ListParams) ([]*Job, int64, error)
	NextPending(limit int) ([]*Job, error)
}

type ListParams struct {
	UserID int64
	Status Status
	Type   Type
	Limit  int
	Offset int
}
