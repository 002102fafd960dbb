package audit

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Actions recorded by the request pipeline and the auth flow.
const (
	ActionMemberRegister = "member.register"
	ActionMemberUpdate   = "member.update"
	ActionMemberDelete   = "member.delete"
	ActionUserLogin      = "auth.login"
	ActionJobCancel      = "job.cancel"
)

// Details is an arbitrary key/value payload stored as JSON.
type Details map[string]any

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *Details) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("unsupported type for audit details")
	}
}

// Entry is an append-only audit record. Entries are never mutated after
// creation; the emitter is the only writer.
type Entry struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Action       string    `json:"action" gorm:"not null"`
	EntityType   string    `json:"entity_type" gorm:"column:entity_type"`
	EntityID     string    `json:"entity_id" gorm:"column:entity_id"`
	Principal    string    `json:"principal"`
	IPAddress    string    `json:"ip_address" gorm:"column:ip_address"`
	Timestamp    time.Time `json:"timestamp" gorm:"not null"`
	Status       Status    `json:"status" gorm:"not null"`
	ErrorMessage string    `json:"error_message,omitempty" gorm:"column:error_message"`
	Details      Details   `json:"details,omitempty" gorm:"type:jsonb"`
}

func (Entry) TableName() string {
	return "audit_logs"
}

type RepositoryAPI interface {
	Create(entry *Entry) error
	List(params ListParams) ([]*Entry, error)
}

type ListParams struct {
	Action     string
	EntityType string
	Status     Status
	Limit      int
	Offset     int
}
