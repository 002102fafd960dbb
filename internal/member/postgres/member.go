package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/frahmantamala/member-directory/internal/member"
)

// MemberRepository implements member.RepositoryAPI using GORM. The database
// unique index on email is the last line of defense against concurrent
// duplicate registrations; its violation is translated to the domain
// duplicate sentinel. The gorm connection must be opened with TranslateError
// enabled for the duplicated-key mapping to fire.
type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) member.RepositoryAPI {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(m *member.Member) error {
	if err := r.db.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return member.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *MemberRepository) Update(m *member.Member) error {
	result := r.db.Model(&member.Member{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"name":       m.Name,
			"email":      m.Email,
			"phone":      m.Phone,
			"updated_at": m.UpdatedAt,
			"updated_by": m.UpdatedBy,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return member.ErrDuplicateEmail
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return member.ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepository) GetByID(id int64) (*member.Member, error) {
	var m member.Member
	if err := r.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, member.ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindByEmail looks up by the canonical lowercase form. Callers normalize
// before calling; the LOWER() guard covers rows written before normalization
// was enforced.
func (r *MemberRepository) FindByEmail(email string) (*member.Member, error) {
	var m member.Member
	if err := r.db.First(&m, "LOWER(email) = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, member.ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) Delete(id int64) error {
	result := r.db.Delete(&member.Member{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return member.ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepository) List(params member.ListParams) ([]*member.Member, int64, error) {
	query := r.db.Model(&member.Member{})

	if params.Search != "" {
		// LOWER + LIKE keeps the match case-insensitive on every dialect
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var members []*member.Member
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(params.Offset).
		Find(&members).Error
	return members, total, err
}
