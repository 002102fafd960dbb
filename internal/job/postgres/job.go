package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/member-directory/internal/job"
)

// JobRepository implements job.RepositoryAPI using GORM.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) job.RepositoryAPI {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(j *job.Job) error {
	return r.db.Create(j).Error
}

// UpdateProgress persists counters and result lists only. The status column
// is deliberately absent so a concurrent cancel is never overwritten.
func (r *JobRepository) UpdateProgress(j *job.Job) error {
	result := r.db.Model(&job.Job{}).
		Where("id = ?", j.ID).
		Updates(map[string]interface{}{
			"processed_items":    j.ProcessedItems,
			"successful_items":   j.SuccessfulItems,
			"failed_items":       j.FailedItems,
			"progress":           j.Progress,
			"successful_results": j.SuccessfulResults,
			"failed_results":     j.FailedResults,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// UpdateStatus writes the full row with an optimistic guard on the stored
// status. Zero rows affected means another writer moved the job first.
func (r *JobRepository) UpdateStatus(j *job.Job, from job.Status) error {
	result := r.db.Model(&job.Job{}).
		Where("id = ? AND status = ?", j.ID, from).
		Updates(map[string]interface{}{
			"status":             j.Status,
			"processed_items":    j.ProcessedItems,
			"successful_items":   j.SuccessfulItems,
			"failed_items":       j.FailedItems,
			"progress":           j.Progress,
			"error_message":      j.ErrorMessage,
			"successful_results": j.SuccessfulResults,
			"failed_results":     j.FailedResults,
			"started_at":         j.StartedAt,
			"completed_at":       j.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrStaleJob
	}
	return nil
}

func (r *JobRepository) GetByID(id string) (*job.Job, error) {
	var j job.Job
	if err := r.db.First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *JobRepository) List(params job.ListParams) ([]*job.Job, int64, error) {
	query := r.db.Model(&job.Job{})

	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Type != "" {
		query = query.Where("type = ?", params.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var jobs []*job.Job
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(params.Offset).
		Find(&jobs).Error
	return jobs, total, err
}

// NextPending returns the oldest pending jobs for the worker, in FIFO order.
func (r *JobRepository) NextPending(limit int) ([]*job.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	var jobs []*job.Job
	err := r.db.Where("status = ?", job.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
