package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with default roles and users",
	Long:  `Seed the database with the default role set and demo users for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initGorm(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{"user_roles", "role_permissions", "roles", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("cleared existing auth data")
		}

		roles := []struct {
			Name        string
			Desc        string
			Permissions []string
		}{
			{"ADMIN", "full administrator", []string{"system:admin"}},
			{"EDITOR", "manages members and jobs", []string{
				"member:create", "member:read", "member:update", "member:delete",
				"job:read", "job:manage",
			}},
			{"VIEWER", "read-only directory access", []string{"member:read", "job:read"}},
		}

		for _, r := range roles {
			roleID := ensureRole(db, r.Name, r.Desc)
			for _, perm := range r.Permissions {
				ensureRolePermission(db, roleID, perm)
			}
			fmt.Printf("seeded role %s with %d permissions\n", r.Name, len(r.Permissions))
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("ChangeMe!123"), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		users := []struct {
			Username string
			Email    string
			Role     string
		}{
			{"admin", "admin@member-directory.local", "ADMIN"},
			{"editor", "editor@member-directory.local", "EDITOR"},
			{"viewer", "viewer@member-directory.local", "VIEWER"},
		}

		for _, u := range users {
			userID := ensureUser(db, u.Username, u.Email, string(hash))
			ensureUserRole(db, userID, u.Role)
			fmt.Printf("seeded user %s with role %s\n", u.Username, u.Role)
		}

		fmt.Println("seed complete; default password is ChangeMe!123")
	},
}

func ensureRole(db *gorm.DB, name, desc string) int64 {
	var id int64
	if err := db.Raw("SELECT id FROM roles WHERE name = ?", name).Row().Scan(&id); err == nil {
		return id
	}
	if err := db.Exec("INSERT INTO roles (name, description, created_at) VALUES (?, ?, now())", name, desc).Error; err != nil {
		log.Fatalf("failed to insert role %s: %v", name, err)
	}
	if err := db.Raw("SELECT id FROM roles WHERE name = ?", name).Row().Scan(&id); err != nil {
		log.Fatalf("role not found after insert %s: %v", name, err)
	}
	return id
}

func ensureRolePermission(db *gorm.DB, roleID int64, permission string) {
	var exists int
	if err := db.Raw("SELECT 1 FROM role_permissions WHERE role_id = ? AND permission = ?", roleID, permission).Row().Scan(&exists); err == nil {
		return
	}
	if err := db.Exec("INSERT INTO role_permissions (role_id, permission) VALUES (?, ?)", roleID, permission).Error; err != nil {
		log.Fatalf("failed to grant permission %s to role %d: %v", permission, roleID, err)
	}
}

func ensureUser(db *gorm.DB, username, email, passwordHash string) int64 {
	var id int64
	if err := db.Raw("SELECT id FROM users WHERE username = ?", username).Row().Scan(&id); err == nil {
		fmt.Printf("user %s already exists\n", username)
		return id
	}
	if err := db.Exec(
		"INSERT INTO users (username, email, password_hash, is_active, account_locked, failed_login_attempts, created_at, updated_at) VALUES (?, ?, ?, true, false, 0, now(), now())",
		username, email, passwordHash,
	).Error; err != nil {
		log.Fatalf("failed to insert user %s: %v", username, err)
	}
	if err := db.Raw("SELECT id FROM users WHERE username = ?", username).Row().Scan(&id); err != nil {
		log.Fatalf("user not found after insert %s: %v", username, err)
	}
	return id
}

func ensureUserRole(db *gorm.DB, userID int64, roleName string) {
	var roleID int64
	if err := db.Raw("SELECT id FROM roles WHERE name = ?", roleName).Row().Scan(&roleID); err != nil {
		log.Fatalf("role not found %s: %v", roleName, err)
	}
	var exists int
	if err := db.Raw("SELECT 1 FROM user_roles WHERE user_id = ? AND role_id = ?", userID, roleID).Row().Scan(&exists); err == nil {
		return
	}
	if err := db.Exec("INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, roleID).Error; err != nil {
		log.Fatalf("failed to assign role %s to user %d: %v", roleName, userID, err)
	}
}
