package audit_test

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/member-directory/internal/audit"
)

func TestAudit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Audit Suite")
}

type mockAuditRepository struct {
	mu          sync.Mutex
	entries     []*audit.Entry
	createError error
	createDelay time.Duration
}

func (m *mockAuditRepository) Create(entry *audit.Entry) error {
	if m.createDelay > 0 {
		time.Sleep(m.createDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return m.createError
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepository) List(params audit.ListParams) ([]*audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*audit.Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *mockAuditRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ = Describe("Emitter", func() {
	var (
		mockRepo *mockAuditRepository
		emitter  *audit.Emitter
		logger   *slog.Logger
	)

	BeforeEach(func() {
		mockRepo = &mockAuditRepository{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	AfterEach(func() {
		if emitter != nil {
			emitter.Close(time.Second)
		}
	})

	It("persists recorded entries asynchronously", func() {
		emitter = audit.NewEmitter(mockRepo, logger, 16)

		emitter.Record(audit.Entry{
			Action:     audit.ActionMemberRegister,
			EntityType: "member",
			EntityID:   "1",
			Principal:  "jdoe",
			Status:     audit.StatusSuccess,
		})

		Eventually(mockRepo.count).Should(Equal(1))
		entries, _ := mockRepo.List(audit.ListParams{})
		Expect(entries[0].Action).To(Equal(audit.ActionMemberRegister))
		Expect(entries[0].Timestamp).NotTo(BeZero())
	})

	It("never blocks the caller when the queue is saturated", func() {
		mockRepo.createDelay = 50 * time.Millisecond
		emitter = audit.NewEmitter(mockRepo, logger, 2)

		start := time.Now()
		for i := 0; i < 50; i++ {
			emitter.Record(audit.Entry{Action: audit.ActionMemberRegister, Status: audit.StatusSuccess})
		}
		elapsed := time.Since(start)

		Expect(elapsed).To(BeNumerically("<", 50*time.Millisecond))
		Expect(emitter.Dropped()).To(BeNumerically(">", 0))
	})

	It("swallows repository failures", func() {
		mockRepo.createError = errors.New("db down")
		emitter = audit.NewEmitter(mockRepo, logger, 16)

		// must not panic or surface anything
		emitter.Record(audit.Entry{Action: audit.ActionMemberDelete, Status: audit.StatusFailure})
		Consistently(mockRepo.count).Should(Equal(0))
	})

	It("drains queued entries on close", func() {
		emitter = audit.NewEmitter(mockRepo, logger, 16)

		for i := 0; i < 5; i++ {
			emitter.Record(audit.Entry{Action: audit.ActionMemberUpdate, Status: audit.StatusSuccess})
		}
		emitter.Close(time.Second)

		Expect(mockRepo.count()).To(Equal(5))
	})

	It("drops entries recorded after close instead of panicking", func() {
		emitter = audit.NewEmitter(mockRepo, logger, 16)
		emitter.Close(time.Second)

		emitter.Record(audit.Entry{Action: audit.ActionMemberRegister, Status: audit.StatusSuccess})
		Expect(emitter.Dropped()).To(BeNumerically(">=", 1))
	})
})
