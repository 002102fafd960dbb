package events_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/member-directory/internal/core/events"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Events Suite")
}

var _ = Describe("EventBus", func() {
	var (
		bus *events.EventBus
	)

	BeforeEach(func() {
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus = events.NewEventBus(testLogger)
	})

	It("delivers job progress events to subscribers", func() {
		var mu sync.Mutex
		var received []events.Event

		bus.Subscribe(events.EventTypeJobProgress, func(ctx context.Context, event events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, event)
			return nil
		})

		evt := events.NewJobProgressEvent("job-1", 2, 4, 50)
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(received)
		}).Should(Equal(1))

		mu.Lock()
		defer mu.Unlock()
		Expect(received[0].EventType()).To(Equal(events.EventTypeJobProgress))
		Expect(received[0].EventID()).NotTo(BeEmpty())
	})

	It("ignores events with no subscribers", func() {
		evt := events.NewJobStartedEvent("job-1", "BULK_DELETE", 3)
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
	})

	It("propagates handler failures only on synchronous publish", func() {
		bus.Subscribe(events.EventTypeJobFailed, func(ctx context.Context, event events.Event) error {
			return errors.New("handler broke")
		})

		evt := events.NewJobFailedEvent("job-1", 1, 2, "boom")

		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
		Expect(bus.PublishSync(context.Background(), evt)).To(HaveOccurred())
	})
})
