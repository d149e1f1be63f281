package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/stayreel/internal/app"
	"github.com/ternarybob/stayreel/internal/models"
)

func runStatus(args []string) int {
	fs, cf := newFlagSet("status")
	jobID := fs.String("job", "", "Job id; omit to list recent jobs")
	status := fs.String("status", "", "Filter the listing by status (queued, processing, completed, failed)")
	limit := fs.Int("limit", 20, "Maximum jobs to list")
	_ = fs.Parse(args)

	if err := loadConfig(cf); err != nil {
		return 1
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	ctx := context.Background()

	if *jobID != "" {
		view, err := application.JobService.GetStatus(ctx, *jobID)
		if err != nil {
			if errors.Is(err, models.ErrJobNotFound) {
				fmt.Fprintf(os.Stderr, "job %s not found\n", *jobID)
			} else {
				logger.Error().Err(err).Str("job_id", *jobID).Msg("Failed to get job status")
			}
			return 1
		}
		if err := printJSON(view); err != nil {
			return 1
		}
		return 0
	}

	views, err := application.JobService.ListJobs(ctx, models.JobStatus(*status), *limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list jobs")
		return 1
	}
	if err := printJSON(views); err != nil {
		return 1
	}
	return 0
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
