package job_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/frahmantamala/member-directory/internal"
	"github.com/frahmantamala/member-directory/internal/audit"
	"github.com/frahmantamala/member-directory/internal/auth"
	"github.com/frahmantamala/member-directory/internal/core/events"
	"github.com/frahmantamala/member-directory/internal/job"
	"github.com/frahmantamala/member-directory/internal/member"
)

func TestJob(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Job Suite")
}

type mockJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{jobs: make(map[string]*job.Job)}
}

func (m *mockJobRepository) Create(j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

// Update writes the row unconditionally; tests use it to seed states.
func (m *mockJobRepository) Update(j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return job.ErrJobNotFound
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *mockJobRepository) UpdateProgress(j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.jobs[j.ID]
	if !ok {
		return job.ErrJobNotFound
	}
	current.ProcessedItems = j.ProcessedItems
	current.SuccessfulItems = j.SuccessfulItems
	current.FailedItems = j.FailedItems
	current.Progress = j.Progress
	current.SuccessfulResults = j.SuccessfulResults
	current.FailedResults = j.FailedResults
	return nil
}

func (m *mockJobRepository) UpdateStatus(j *job.Job, from job.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.jobs[j.ID]
	if !ok {
		return job.ErrJobNotFound
	}
	if current.Status != from {
		return job.ErrStaleJob
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *mockJobRepository) GetByID(id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobRepository) List(params job.ListParams) ([]*job.Job, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if params.Status != "" && j.Status != params.Status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (m *mockJobRepository) NextPending(limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status == job.StatusPending && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockDirectory struct {
	mu         sync.Mutex
	members    map[string]*member.Member
	nextID     int64
	deleted    []int64
	failEmail  string
	deleteHook func()
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{members: make(map[string]*member.Member), nextID: 1}
}

func (m *mockDirectory) Register(actor *auth.User, dto *member.RegisterMemberDTO) (*member.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := member.NormalizeEmail(dto.Email)
	if email == m.failEmail {
		return nil, internal.NewConflictError("email", email)
	}
	mem := &member.Member{ID: m.nextID, Name: dto.Name, Email: email, Phone: dto.Phone}
	m.nextID++
	m.members[email] = mem
	return mem, nil
}

func (m *mockDirectory) Delete(actor *auth.User, id int64) error {
	if m.deleteHook != nil {
		m.deleteHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, mem := range m.members {
		if mem.ID == id {
			delete(m.members, email)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return member.ErrMemberNotFound
}

func (m *mockDirectory) FindByEmail(email string) (*member.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[email]
	if !ok {
		return nil, member.ErrMemberNotFound
	}
	cp := *mem
	return &cp, nil
}

type jobRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *jobRecorder) Record(entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func jobErrCode(err error) internal.ErrorCode {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		return ""
	}
	return appErr.Code
}

var _ = Describe("Job lifecycle", func() {
	It("allows only the declared transitions", func() {
		Expect(job.StatusPending.CanTransitionTo(job.StatusInProgress)).To(BeTrue())
		Expect(job.StatusPending.CanTransitionTo(job.StatusCancelled)).To(BeTrue())
		Expect(job.StatusPending.CanTransitionTo(job.StatusCompleted)).To(BeFalse())
		Expect(job.StatusInProgress.CanTransitionTo(job.StatusCompleted)).To(BeTrue())
		Expect(job.StatusInProgress.CanTransitionTo(job.StatusFailed)).To(BeTrue())
		Expect(job.StatusInProgress.CanTransitionTo(job.StatusCancelled)).To(BeTrue())
		Expect(job.StatusInProgress.CanTransitionTo(job.StatusPending)).To(BeFalse())
	})

	It("treats completed, failed and cancelled as immutable", func() {
		for _, terminal := range []job.Status{job.StatusCompleted, job.StatusFailed, job.StatusCancelled} {
			Expect(terminal.IsTerminal()).To(BeTrue())
			j := &job.Job{Status: terminal}
			for _, target := range []job.Status{job.StatusPending, job.StatusInProgress, job.StatusCompleted, job.StatusFailed, job.StatusCancelled} {
				Expect(j.Transition(target, time.Now())).To(MatchError(job.ErrInvalidTransition))
			}
		}
	})

	It("stamps started_at and completed_at on transition", func() {
		j := &job.Job{Status: job.StatusPending}
		now := time.Now()

		Expect(j.Transition(job.StatusInProgress, now)).To(Succeed())
		Expect(j.StartedAt).NotTo(BeNil())

		later := now.Add(time.Minute)
		Expect(j.Transition(job.StatusCompleted, later)).To(Succeed())
		Expect(j.CompletedAt).NotTo(BeNil())
		Expect(*j.CompletedAt).To(Equal(later))
	})

	It("computes progress from processed over total", func() {
		j := &job.Job{Status: job.StatusInProgress, TotalItems: 4}

		j.RecordResult(job.ResultItem{Identifier: "a@example.com"}, true)
		Expect(j.Progress).To(Equal(25))

		j.RecordResult(job.ResultItem{Identifier: "b@example.com", Reason: "conflict"}, false)
		j.RecordResult(job.ResultItem{Identifier: "c@example.com"}, true)
		j.RecordResult(job.ResultItem{Identifier: "d@example.com"}, true)

		Expect(j.Progress).To(Equal(100))
		Expect(j.SuccessfulItems).To(Equal(3))
		Expect(j.FailedItems).To(Equal(1))
		Expect(j.SuccessfulResults).To(HaveLen(3))
		Expect(j.FailedResults).To(HaveLen(1))
		Expect(j.SuccessfulResults[0].Identifier).To(Equal("a@example.com"))
	})
})

var _ = Describe("JobService", func() {
	var (
		repo     *mockJobRepository
		recorder *jobRecorder
		service  *job.Service
		operator *auth.User
		viewer   *auth.User
	)

	newUser := func(username string, perms ...string) *auth.User {
		return &auth.User{
			ID:       7,
			Username: username,
			IsActive: true,
			Roles:    []auth.Role{{Name: "TEST", Permissions: perms}},
		}
	}

	BeforeEach(func() {
		repo = newMockJobRepository()
		recorder = &jobRecorder{}
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus := events.NewEventBus(testLogger)
		service = job.NewService(repo, auth.NewEvaluator(), recorder, bus, testLogger)

		operator = newUser("operator1", "job:read", "job:manage")
		viewer = newUser("viewer1", "job:read")
	})

	Describe("Submit", func() {
		It("enqueues a pending job with its payload", func() {
			j, err := service.Submit(operator, &job.CreateJobDTO{
				Type: job.TypeBulkDelete,
				Items: []map[string]string{
					{"email": "a@example.com"},
					{"email": "b@example.com"},
				},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(j.ID).NotTo(BeEmpty())
			Expect(j.Status).To(Equal(job.StatusPending))
			Expect(j.TotalItems).To(Equal(2))
			Expect(j.UserID).To(Equal(int64(7)))
		})

		It("rejects an unknown job type", func() {
			_, err := service.Submit(operator, &job.CreateJobDTO{
				Type:  "REINDEX",
				Items: []map[string]string{{"email": "a@example.com"}},
			})

			Expect(jobErrCode(err)).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("rejects an empty item list", func() {
			_, err := service.Submit(operator, &job.CreateJobDTO{Type: job.TypeBulkDelete})

			Expect(jobErrCode(err)).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("denies an actor without job:manage", func() {
			_, err := service.Submit(viewer, &job.CreateJobDTO{
				Type:  job.TypeBulkDelete,
				Items: []map[string]string{{"email": "a@example.com"}},
			})

			Expect(jobErrCode(err)).To(Equal(internal.ErrCodeInsufficientPermission))
		})
	})

	Describe("Cancel", func() {
		var pending *job.Job

		BeforeEach(func() {
			var err error
			pending, err = service.Submit(operator, &job.CreateJobDTO{
				Type:  job.TypeBulkDelete,
				Items: []map[string]string{{"email": "a@example.com"}},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("cancels a pending job and audits it", func() {
			j, err := service.Cancel(operator, pending.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(j.Status).To(Equal(job.StatusCancelled))
			Expect(j.CompletedAt).NotTo(BeNil())

			Expect(recorder.entries).To(HaveLen(1))
			Expect(recorder.entries[0].Action).To(Equal(audit.ActionJobCancel))
			Expect(recorder.entries[0].Status).To(Equal(audit.StatusSuccess))
		})

		It("refuses to cancel a terminal job", func() {
			stored, err := repo.GetByID(pending.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Transition(job.StatusInProgress, time.Now())).To(Succeed())
			Expect(stored.Transition(job.StatusCompleted, time.Now())).To(Succeed())
			Expect(repo.Update(stored)).To(Succeed())

			_, err = service.Cancel(operator, pending.ID)

			Expect(jobErrCode(err)).To(Equal(internal.ErrCodeInvalidJobTransition))

			after, getErr := repo.GetByID(pending.ID)
			Expect(getErr).NotTo(HaveOccurred())
			Expect(after.Status).To(Equal(job.StatusCompleted))
		})

		It("denies an actor without job:manage", func() {
			_, err := service.Cancel(viewer, pending.ID)

			Expect(jobErrCode(err)).To(Equal(internal.ErrCodeInsufficientPermission))
		})

		It("returns not found for an unknown id", func() {
			_, err := service.Cancel(operator, "no-such-job")

			Expect(jobErrCode(err)).To(Equal(internal.ErrCodeJobNotFound))
		})
	})
})

var _ = Describe("Worker", func() {
	var (
		repo      *mockJobRepository
		directory *mockDirectory
		worker    *job.Worker
	)

	BeforeEach(func() {
		repo = newMockJobRepository()
		directory = newMockDirectory()
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus := events.NewEventBus(testLogger)
		worker = job.NewWorker(repo, directory, directory, bus, testLogger, time.Second, 10)
	})

	enqueue := func(jobType job.Type, items []map[string]string) *job.Job {
		j := &job.Job{
			ID:         fmt.Sprintf("job-%s-%d", jobType, time.Now().UnixNano()),
			Type:       jobType,
			Status:     job.StatusPending,
			TotalItems: len(items),
			Payload:    job.Payload(items),
			CreatedAt:  time.Now(),
		}
		Expect(repo.Create(j)).To(Succeed())
		return j
	}

	It("processes an upload job to completion", func() {
		j := enqueue(job.TypeExcelUpload, []map[string]string{
			{"name": "Row One", "email": "one@example.com", "phone": "9000000001"},
			{"name": "Row Two", "email": "two@example.com", "phone": "9000000002"},
		})

		worker.RunOnce(context.Background())

		final, err := repo.GetByID(j.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCompleted))
		Expect(final.SuccessfulItems).To(Equal(2))
		Expect(final.FailedItems).To(Equal(0))
		Expect(final.Progress).To(Equal(100))
		Expect(final.StartedAt).NotTo(BeNil())
		Expect(final.CompletedAt).NotTo(BeNil())
		Expect(final.SuccessfulResults[0].Identifier).To(Equal("one@example.com"))
	})

	It("records per-item failures without failing the job", func() {
		directory.failEmail = "two@example.com"
		j := enqueue(job.TypeExcelUpload, []map[string]string{
			{"name": "Row One", "email": "one@example.com", "phone": "9000000001"},
			{"name": "Row Two", "email": "two@example.com", "phone": "9000000002"},
		})

		worker.RunOnce(context.Background())

		final, err := repo.GetByID(j.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCompleted))
		Expect(final.SuccessfulItems).To(Equal(1))
		Expect(final.FailedItems).To(Equal(1))
		Expect(final.FailedResults[0].Identifier).To(Equal("two@example.com"))
		Expect(final.FailedResults[0].Reason).NotTo(BeEmpty())
	})

	It("deletes members by email and reports unknown addresses", func() {
		_, err := directory.Register(nil, &member.RegisterMemberDTO{
			Name: "Victim", Email: "victim@example.com", Phone: "9000000003",
		})
		Expect(err).NotTo(HaveOccurred())

		j := enqueue(job.TypeBulkDelete, []map[string]string{
			{"email": "Victim@Example.com"},
			{"email": "ghost@example.com"},
		})

		worker.RunOnce(context.Background())

		final, getErr := repo.GetByID(j.ID)
		Expect(getErr).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCompleted))
		Expect(final.SuccessfulItems).To(Equal(1))
		Expect(final.FailedItems).To(Equal(1))
		Expect(final.FailedResults[0].Reason).To(ContainSubstring("no member"))
		Expect(directory.deleted).To(HaveLen(1))
	})

	It("skips a job cancelled before pickup", func() {
		j := enqueue(job.TypeBulkDelete, []map[string]string{{"email": "a@example.com"}})
		stored, err := repo.GetByID(j.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Transition(job.StatusCancelled, time.Now())).To(Succeed())
		Expect(repo.Update(stored)).To(Succeed())

		worker.Process(context.Background(), stored)

		final, getErr := repo.GetByID(j.ID)
		Expect(getErr).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCancelled))
		Expect(final.ProcessedItems).To(Equal(0))
	})

	It("does not restart a job cancelled between poll and pickup", func() {
		j := enqueue(job.TypeBulkDelete, []map[string]string{{"email": "a@example.com"}})
		stale, err := repo.GetByID(j.ID)
		Expect(err).NotTo(HaveOccurred())

		stored, err := repo.GetByID(j.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Transition(job.StatusCancelled, time.Now())).To(Succeed())
		Expect(repo.Update(stored)).To(Succeed())

		// the worker still holds the pending snapshot from its poll
		worker.Process(context.Background(), stale)

		final, getErr := repo.GetByID(j.ID)
		Expect(getErr).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCancelled))
		Expect(final.ProcessedItems).To(Equal(0))
		Expect(directory.deleted).To(BeEmpty())
	})

	It("stops at the item boundary when cancelled mid-run and keeps the cancelled status", func() {
		for i, email := range []string{"first@example.com", "second@example.com"} {
			_, err := directory.Register(nil, &member.RegisterMemberDTO{
				Name: "Member", Email: email, Phone: fmt.Sprintf("900000001%d", i),
			})
			Expect(err).NotTo(HaveOccurred())
		}

		j := enqueue(job.TypeBulkDelete, []map[string]string{
			{"email": "first@example.com"},
			{"email": "second@example.com"},
		})

		// the cancel lands while the first item is being processed
		directory.deleteHook = func() {
			directory.deleteHook = nil
			stored, err := repo.GetByID(j.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Transition(job.StatusCancelled, time.Now())).To(Succeed())
			Expect(repo.Update(stored)).To(Succeed())
		}

		worker.RunOnce(context.Background())

		final, getErr := repo.GetByID(j.ID)
		Expect(getErr).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCancelled))
		Expect(final.ProcessedItems).To(Equal(1))
		Expect(final.SuccessfulItems).To(Equal(1))
		Expect(directory.deleted).To(HaveLen(1))
	})

	It("keeps the cancelled status when the cancel lands after the last item", func() {
		_, err := directory.Register(nil, &member.RegisterMemberDTO{
			Name: "Member", Email: "only@example.com", Phone: "9000000019",
		})
		Expect(err).NotTo(HaveOccurred())

		j := enqueue(job.TypeBulkDelete, []map[string]string{{"email": "only@example.com"}})

		directory.deleteHook = func() {
			directory.deleteHook = nil
			stored, err := repo.GetByID(j.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Transition(job.StatusCancelled, time.Now())).To(Succeed())
			Expect(repo.Update(stored)).To(Succeed())
		}

		worker.RunOnce(context.Background())

		final, getErr := repo.GetByID(j.ID)
		Expect(getErr).NotTo(HaveOccurred())
		Expect(final.Status).To(Equal(job.StatusCancelled))
		Expect(final.ProcessedItems).To(Equal(1))
		Expect(final.SuccessfulItems).To(Equal(1))
	})
})
