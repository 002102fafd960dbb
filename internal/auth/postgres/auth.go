package auth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/frahmantamala/member-directory/internal/auth"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetByUsername(username string) (*auth.User, error) {
	var user auth.User
	query := `SELECT id, username, email, password_hash, is_active, account_locked,
	                 failed_login_attempts, lockout_end_time, last_login_date
	          FROM users WHERE username = ?`

	row := r.db.Raw(query, username).Row()
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsActive, &user.AccountLocked, &user.FailedLoginAttempts,
		&user.LockoutEndTime, &user.LastLoginDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserWithRoles(userID int64) (*auth.User, error) {
	var user auth.User

	query := `SELECT id, username, email, is_active, account_locked
	          FROM users WHERE id = ? AND is_active = true`

	row := r.db.Raw(query, userID).Row()
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.IsActive, &user.AccountLocked); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}

	roleQuery := `SELECT r.id, r.name, r.description
	              FROM roles r
	              JOIN user_roles ur ON r.id = ur.role_id
	              WHERE ur.user_id = ?`

	rows, err := r.db.Raw(roleQuery, userID).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		perms, err := r.getRolePermissions(roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}

	user.Roles = roles
	return &user, nil
}

func (r *Repository) getRolePermissions(roleID int64) ([]string, error) {
	rows, err := r.db.Raw(`SELECT permission FROM role_permissions WHERE role_id = ?`, roleID).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		permissions = append(permissions, token)
	}
	return permissions, rows.Err()
}

func (r *Repository) UpdateLoginState(userID int64, failedAttempts int, locked bool, lockoutEnd *time.Time) error {
	return r.db.Exec(`UPDATE users
	                  SET failed_login_attempts = ?, account_locked = ?, lockout_end_time = ?, updated_at = ?
	                  WHERE id = ?`,
		failedAttempts, locked, lockoutEnd, time.Now(), userID).Error
}

func (r *Repository) RecordSuccessfulLogin(userID int64, at time.Time) error {
	return r.db.Exec(`UPDATE users
	                  SET failed_login_attempts = 0, account_locked = false, lockout_end_time = NULL,
	                      last_login_date = ?, updated_at = ?
	                  WHERE id = ?`,
		at, time.Now(), userID).Error
}
