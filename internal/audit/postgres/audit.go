package postgres

import (
	"github.com/frahmantamala/member-directory/internal/audit"
	"gorm.io/gorm"
)

// AuditRepository implements audit.RepositoryAPI using GORM
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.RepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(entry *audit.Entry) error {
	return r.db.Create(entry).Error
}

func (r *AuditRepository) List(params audit.ListParams) ([]*audit.Entry, error) {
	query := r.db.Model(&audit.Entry{})

	if params.Action != "" {
		query = query.Where("action = ?", params.Action)
	}
	if params.EntityType != "" {
		query = query.Where("entity_type = ?", params.EntityType)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var entries []*audit.Entry
	err := query.Order("timestamp DESC").
		Limit(limit).
		Offset(params.Offset).
		Find(&entries).Error
	return entries, err
}
