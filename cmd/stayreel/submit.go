package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/stayreel/internal/app"
	"github.com/ternarybob/stayreel/internal/models"
)

// runSubmit creates a job. Badger holds an exclusive directory lock, so submit runs
// against a stopped server's database; with -wait it processes the job in-process.
func runSubmit(args []string) int {
	fs, cf := newFlagSet("submit")
	templateID := fs.String("template", "", "Template id (required)")
	propertyID := fs.String("property", "", "Property id (required)")
	wait := fs.Bool("wait", false, "Run workers in this process and wait for the job to finish")
	timeout := fs.Duration("timeout", 30*time.Minute, "Maximum time to wait with -wait")
	_ = fs.Parse(args)

	if *templateID == "" || *propertyID == "" {
		fmt.Fprintln(os.Stderr, "submit requires -template and -property")
		fs.Usage()
		return 2
	}

	if err := loadConfig(cf); err != nil {
		return 1
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobID, err := application.JobService.Submit(ctx, *templateID, *propertyID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to submit job")
		return 1
	}

	if !*wait {
		fmt.Println(jobID)
		return 0
	}

	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start workers")
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	view, err := waitForJob(ctx, application, jobID)
	if view != nil {
		_ = printJSON(view)
	}
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("Stopped waiting for job")
		return 1
	}
	if view.Status != models.JobStatusCompleted {
		return 1
	}
	return 0
}

// waitForJob polls until the job reaches a terminal status or ctx ends
func waitForJob(ctx context.Context, application *app.App, jobID string) (*models.JobStatusView, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastStage := models.JobStage("")
	for {
		view, err := application.JobService.GetStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if view.Stage != lastStage {
			lastStage = view.Stage
			logger.Info().
				Str("job_id", jobID).
				Str("stage", string(view.Stage)).
				Int("progress", view.Progress).
				Msg("Job progress")
		}
		if view.Status.IsTerminal() {
			return view, nil
		}

		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}
