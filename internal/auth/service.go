package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultMaxFailedLogins = 5
	DefaultLockoutDuration = 30 * time.Minute
)

// Service owns authentication and the account lockout invariant: the fifth
// consecutive failed attempt locks the account for the lockout window, and
// the lock clears passively on the first attempt after the window elapses.
type Service struct {
	userRepo        RepositoryAPI
	tokenGenerator  TokenGeneratorAPI
	logger          *slog.Logger
	bcryptCost      int
	maxFailedLogins int
	lockoutDuration time.Duration
}

func NewService(userRepo RepositoryAPI, tokenGen TokenGeneratorAPI, logger *slog.Logger) *Service {
	return &Service{
		userRepo:        userRepo,
		tokenGenerator:  tokenGen,
		logger:          logger,
		bcryptCost:      bcrypt.DefaultCost,
		maxFailedLogins: DefaultMaxFailedLogins,
		lockoutDuration: DefaultLockoutDuration,
	}
}

// WithLockoutPolicy overrides the default lockout thresholds from config.
func (s *Service) WithLockoutPolicy(maxFailedLogins int, lockoutDuration time.Duration) *Service {
	if maxFailedLogins > 0 {
		s.maxFailedLogins = maxFailedLogins
	}
	if lockoutDuration > 0 {
		s.lockoutDuration = lockoutDuration
	}
	return s
}

func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * 7 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
}

// Authenticate validates credentials and returns tokens. The lock check runs
// before password verification so a locked account is rejected regardless of
// password correctness.
func (s *Service) Authenticate(dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	username := strings.ToLower(strings.TrimSpace(dto.Username))
	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return AuthTokens{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return AuthTokens{}, ErrUserInactive
	}

	now := time.Now()
	if user.AccountLocked {
		if !user.LockExpired(now) {
			s.logger.Warn("login attempt on locked account", "user_id", user.ID)
			return AuthTokens{}, ErrAccountLocked
		}
		// lockout window elapsed, clear the lock before verifying
		if err := s.userRepo.UpdateLoginState(user.ID, 0, false, nil); err != nil {
			s.logger.Error("failed to clear expired lockout", "error", err, "user_id", user.ID)
			return AuthTokens{}, err
		}
		user.AccountLocked = false
		user.FailedLoginAttempts = 0
		user.LockoutEndTime = nil
	}

	if err := VerifyPassword(user.PasswordHash, dto.Password); err != nil {
		s.recordFailedAttempt(user, now)
		return AuthTokens{}, ErrInvalidCredentials
	}

	if err := s.userRepo.RecordSuccessfulLogin(user.ID, now); err != nil {
		s.logger.Error("failed to record successful login", "error", err, "user_id", user.ID)
	}

	userID := fmt.Sprintf("%d", user.ID)
	accessToken, err := s.tokenGenerator.GenerateAccessToken(userID, user.Username)
	if err != nil {
		return AuthTokens{}, err
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(userID, user.Username)
	if err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// recordFailedAttempt bumps the counter and applies the lock once the
// threshold is reached.
func (s *Service) recordFailedAttempt(user *User, now time.Time) {
	attempts := user.FailedLoginAttempts + 1
	locked := attempts >= s.maxFailedLogins

	var lockoutEnd *time.Time
	if locked {
		end := now.Add(s.lockoutDuration)
		lockoutEnd = &end
		s.logger.Warn("account locked after repeated failed logins",
			"user_id", user.ID,
			"failed_attempts", attempts,
			"lockout_end", end)
	}

	if err := s.userRepo.UpdateLoginState(user.ID, attempts, locked, lockoutEnd); err != nil {
		s.logger.Error("failed to persist login state", "error", err, "user_id", user.ID)
	}
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	accessToken, err := s.tokenGenerator.GenerateAccessToken(claims.UserID, claims.Username)
	if err != nil {
		return AuthTokens{}, err
	}

	newRefreshToken, err := s.tokenGenerator.GenerateRefreshToken(claims.UserID, claims.Username)
	if err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

// GetUserWithRoles loads the principal and its role set for a request.
func (s *Service) GetUserWithRoles(userID int64) (*User, error) {
	return s.userRepo.GetUserWithRoles(userID)
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID string, username string) (string, error) {
	return j.signToken(userID, username, j.AccessTokenTTL, j.AccessTokenSecret)
}

// GenerateRefreshToken creates a new refresh token
func (j *JWTTokenGenerator) GenerateRefreshToken(userID string, username string) (string, error) {
	return j.signToken(userID, username, j.RefreshTokenTTL, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) signToken(userID, username string, ttl time.Duration, secret []byte) (string, error) {
	expiresAt := time.Now().Add(ttl)

	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Long-lived tokens were signed with the refresh secret.
		if claims, ok := token.Claims.(*Claims); ok {
			if time.Until(claims.ExpiresAt.Time) > j.AccessTokenTTL {
				return j.RefreshTokenSecret, nil
			}
		}
		return j.AccessTokenSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
