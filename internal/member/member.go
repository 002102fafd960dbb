package member

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// SystemPrincipal stamps entities created or changed outside a user session,
// e.g. by the seeder or a background job.
const SystemPrincipal = "system"

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Member is the registry entity. Email is unique among live rows; soft
// deleted rows keep their email out of the way via the deleted_at column in
// the partial index.
type Member struct {
	ID        int64          `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"not null"`
	Email     string         `json:"email" gorm:"not null;uniqueIndex:idx_members_email,where:deleted_at IS NULL"`
	Phone     string         `json:"phone" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	CreatedBy string         `json:"created_by" gorm:"column:created_by"`
	UpdatedBy string         `json:"updated_by" gorm:"column:updated_by"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Member) TableName() string {
	return "members"
}

// NormalizeEmail lowercases and trims so that uniqueness checks and lookups
// agree on a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RepositoryAPI interface {
	Create(m *Member) error
	Update(m *Member) error
	GetByID(id int64) (*Member, error)
	FindByEmail(email string) (*Member, error)
	Delete(id int64) error
	List(params ListParams) ([]*Member, int64, error)
}

type ListParams struct {
	Search string
	Limit  int
	Offset int
}
