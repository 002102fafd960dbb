package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type ServiceAPI interface {
	Authenticate(dto LoginDTO) (AuthTokens, error)
	RefreshTokens(refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetUserWithRoles(userID int64) (*User, error)
	HashPassword(password string) (string, error)
}

type RepositoryAPI interface {
	GetByUsername(username string) (*User, error)
	GetUserWithRoles(userID int64) (*User, error)
	UpdateLoginState(userID int64, failedAttempts int, locked bool, lockoutEnd *time.Time) error
	RecordSuccessfulLogin(userID int64, at time.Time) error
}

type TokenGeneratorAPI interface {
	GenerateAccessToken(userID string, username string) (token string, err error)
	GenerateRefreshToken(userID string, username string) (token string, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

// User is the authentication principal. Roles are loaded through the
// user_roles join; the slice is not a persisted column.
type User struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	IsActive            bool       `json:"is_active"`
	AccountLocked       bool       `json:"account_locked"`
	FailedLoginAttempts int        `json:"-"`
	LockoutEndTime      *time.Time `json:"-"`
	LastLoginDate       *time.Time `json:"last_login_date,omitempty"`
	Roles               []Role     `json:"roles,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role carries permission tokens as raw strings; evaluation parses them and
// skips anything it does not recognize.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// LockExpired reports whether a lock is present but its window has elapsed.
func (u *User) LockExpired(now time.Time) bool {
	return u.AccountLocked && u.LockoutEndTime != nil && now.After(*u.LockoutEndTime)
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserInactive       = errors.New("user is inactive")
)

type ctxKey string

const ContextUserKey ctxKey = "user"

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}

func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, u)
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
