package auth_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/member-directory/internal/auth"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

type mockUserRepository struct {
	users            map[string]*auth.User
	usersByID        map[int64]*auth.User
	updateStateError error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users:     make(map[string]*auth.User),
		usersByID: make(map[int64]*auth.User),
	}
}

func (m *mockUserRepository) add(u *auth.User) {
	m.users[u.Username] = u
	m.usersByID[u.ID] = u
}

func (m *mockUserRepository) GetByUsername(username string) (*auth.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, errors.New("user not found")
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepository) GetUserWithRoles(userID int64) (*auth.User, error) {
	u, ok := m.usersByID[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (m *mockUserRepository) UpdateLoginState(userID int64, failedAttempts int, locked bool, lockoutEnd *time.Time) error {
	if m.updateStateError != nil {
		return m.updateStateError
	}
	if u, ok := m.usersByID[userID]; ok {
		u.FailedLoginAttempts = failedAttempts
		u.AccountLocked = locked
		u.LockoutEndTime = lockoutEnd
	}
	return nil
}

func (m *mockUserRepository) RecordSuccessfulLogin(userID int64, at time.Time) error {
	if u, ok := m.usersByID[userID]; ok {
		u.FailedLoginAttempts = 0
		u.AccountLocked = false
		u.LockoutEndTime = nil
		u.LastLoginDate = &at
	}
	return nil
}

type mockTokenGenerator struct {
	generateError error
}

func (m *mockTokenGenerator) GenerateAccessToken(userID string, username string) (string, error) {
	if m.generateError != nil {
		return "", m.generateError
	}
	return "access-" + userID, nil
}

func (m *mockTokenGenerator) GenerateRefreshToken(userID string, username string) (string, error) {
	if m.generateError != nil {
		return "", m.generateError
	}
	return "refresh-" + userID, nil
}

func (m *mockTokenGenerator) ValidateToken(tokenString string) (*auth.Claims, error) {
	return nil, auth.ErrInvalidToken
}

var _ = Describe("AuthService", func() {
	const correctPassword = "Str0ng!pass"

	var (
		service  *auth.Service
		mockRepo *mockUserRepository
		user     *auth.User
	)

	BeforeEach(func() {
		mockRepo = newMockUserRepository()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = auth.NewService(mockRepo, &mockTokenGenerator{}, logger).
			WithLockoutPolicy(5, 30*time.Minute)

		hash, err := bcrypt.GenerateFromPassword([]byte(correctPassword), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())

		user = &auth.User{
			ID:           1,
			Username:     "jdoe",
			Email:        "jdoe@example.com",
			PasswordHash: string(hash),
			IsActive:     true,
		}
		mockRepo.add(user)
	})

	Describe("Authenticate", func() {
		Context("with valid credentials", func() {
			It("returns access and refresh tokens", func() {
				tokens, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: correctPassword})
				Expect(err).NotTo(HaveOccurred())
				Expect(tokens.AccessToken).To(Equal("access-1"))
				Expect(tokens.RefreshToken).To(Equal("refresh-1"))
			})

			It("normalizes the username before lookup", func() {
				_, err := service.Authenticate(auth.LoginDTO{Username: "  JDoe ", Password: correctPassword})
				Expect(err).NotTo(HaveOccurred())
			})

			It("records the login date", func() {
				_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: correctPassword})
				Expect(err).NotTo(HaveOccurred())
				Expect(user.LastLoginDate).NotTo(BeNil())
			})
		})

		Context("with invalid credentials", func() {
			It("rejects a wrong password and increments the failure counter", func() {
				_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: "Wr0ng!pass"})
				Expect(err).To(Equal(auth.ErrInvalidCredentials))
				Expect(user.FailedLoginAttempts).To(Equal(1))
				Expect(user.AccountLocked).To(BeFalse())
			})

			It("rejects an unknown username", func() {
				_, err := service.Authenticate(auth.LoginDTO{Username: "ghost", Password: correctPassword})
				Expect(err).To(Equal(auth.ErrInvalidCredentials))
			})

			It("rejects an inactive user", func() {
				user.IsActive = false
				_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: correctPassword})
				Expect(err).To(Equal(auth.ErrUserInactive))
			})

			It("rejects missing fields with a validation error", func() {
				_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe"})
				Expect(err).To(BeAssignableToTypeOf(auth.ValidationError{}))
			})
		})

		Context("account lockout", func() {
			failTimes := func(n int) {
				for i := 0; i < n; i++ {
					_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: "Wr0ng!pass"})
					Expect(err).To(Equal(auth.ErrInvalidCredentials))
				}
			}

			It("locks the account on the fifth consecutive failure", func() {
				failTimes(4)
				Expect(user.AccountLocked).To(BeFalse())

				failTimes(1)
				Expect(user.AccountLocked).To(BeTrue())
				Expect(user.FailedLoginAttempts).To(Equal(5))
				Expect(user.LockoutEndTime).NotTo(BeNil())
				Expect(user.LockoutEndTime.Sub(time.Now())).To(BeNumerically("~", 30*time.Minute, time.Minute))
			})

			It("rejects a locked account even with the correct password", func() {
				failTimes(5)
				Expect(user.AccountLocked).To(BeTrue())

				_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: correctPassword})
				Expect(err).To(Equal(auth.ErrAccountLocked))
			})

			It("unlocks passively once the lockout window has elapsed and resets the counter", func() {
				failTimes(5)
				Expect(user.AccountLocked).To(BeTrue())

				expired := time.Now().Add(-time.Minute)
				user.LockoutEndTime = &expired

				tokens, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: correctPassword})
				Expect(err).NotTo(HaveOccurred())
				Expect(tokens.AccessToken).NotTo(BeEmpty())
				Expect(user.AccountLocked).To(BeFalse())
				Expect(user.FailedLoginAttempts).To(Equal(0))
				Expect(user.LockoutEndTime).To(BeNil())
			})

			It("counts a wrong password after lock expiry as the first new failure", func() {
				failTimes(5)
				expired := time.Now().Add(-time.Minute)
				user.LockoutEndTime = &expired

				_, err := service.Authenticate(auth.LoginDTO{Username: "jdoe", Password: "Wr0ng!pass"})
				Expect(err).To(Equal(auth.ErrInvalidCredentials))
				Expect(user.AccountLocked).To(BeFalse())
				Expect(user.FailedLoginAttempts).To(Equal(1))
			})
		})
	})

	Describe("token round trip", func() {
		It("issues and validates HS256 tokens through the JWT generator", func() {
			gen := auth.NewJWTTokenGenerator(
				"0123456789abcdef0123456789abcdef",
				"fedcba9876543210fedcba9876543210",
				15*time.Minute, 7*24*time.Hour)

			token, err := gen.GenerateAccessToken("42", "jdoe")
			Expect(err).NotTo(HaveOccurred())

			claims, err := gen.ValidateToken(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal("42"))
			Expect(claims.Username).To(Equal("jdoe"))
		})

		It("rejects tampered tokens", func() {
			gen := auth.NewJWTTokenGenerator(
				"0123456789abcdef0123456789abcdef",
				"fedcba9876543210fedcba9876543210",
				15*time.Minute, 7*24*time.Hour)

			token, err := gen.GenerateAccessToken("42", "jdoe")
			Expect(err).NotTo(HaveOccurred())

			_, err = gen.ValidateToken(token + "x")
			Expect(err).To(Equal(auth.ErrInvalidToken))
		})
	})
})
