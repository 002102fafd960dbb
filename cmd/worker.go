package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/member-directory/internal/audit"
	auditpg "github.com/frahmantamala/member-directory/internal/audit/postgres"
	"github.com/frahmantamala/member-directory/internal/auth"
	"github.com/frahmantamala/member-directory/internal/core/events"
	"github.com/frahmantamala/member-directory/internal/job"
	jobpg "github.com/frahmantamala/member-directory/internal/job/postgres"
	"github.com/frahmantamala/member-directory/internal/member"
	memberpg "github.com/frahmantamala/member-directory/internal/member/postgres"
	"github.com/frahmantamala/member-directory/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background job worker",
	Long:  `Start the worker that processes queued BULK_DELETE and EXCEL_UPLOAD jobs through the member pipeline.`,
	Run: func(cmd *cobra.Command, args []string) {
		startJobWorker()
	},
}

func startJobWorker() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.L()

	gormDB, err := initGorm(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	memberRepo := memberpg.NewMemberRepository(gormDB)
	jobRepo := jobpg.NewJobRepository(gormDB)
	auditRepo := auditpg.NewAuditRepository(gormDB)

	emitter := audit.NewEmitter(auditRepo, lg, cfg.Audit.QueueSize)
	evaluator := auth.NewEvaluator()
	memberService := member.NewService(memberRepo, evaluator, emitter, lg)

	eventBus := events.NewEventBus(lg)
	eventBus.Subscribe(events.EventTypeJobCompleted, func(ctx context.Context, event events.Event) error {
		lg.Info("job finished", "event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
	eventBus.Subscribe(events.EventTypeJobFailed, func(ctx context.Context, event events.Event) error {
		lg.Warn("job failed", "event_id", event.EventID(), "payload", event.Payload())
		return nil
	})

	worker := job.NewWorker(jobRepo, memberService, memberRepo, eventBus, lg,
		cfg.Worker.PollInterval, cfg.Worker.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	lg.Info("job worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down job worker", "signal", sig)
	cancel()
	<-done

	emitter.Close(cfg.Audit.FlushTimeout)
	lg.Info("job worker shutdown complete")
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
