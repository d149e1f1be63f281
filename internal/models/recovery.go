package models

import "time"

// SweepResult summarises one recovery sweep
type SweepResult struct {
	Scanned   int             `json:"scanned"`
	Requeued  int             `json:"requeued"`
	Abandoned int             `json:"abandoned"`
	Skipped   int             `json:"skipped"` // Lost the conditional update to a live worker
	Events    []RecoveryEvent `json:"events,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}

// RecoveryStats is the cumulative view exposed for observability
type RecoveryStats struct {
	Sweeps          int             `json:"sweeps"`
	TotalRecoveries int             `json:"total_recoveries"`
	TotalAbandoned  int             `json:"total_abandoned"`
	LastSweepAt     time.Time       `json:"last_sweep_at"`
	LastSweepError  string          `json:"last_sweep_error,omitempty"`
	RecentEvents    []RecoveryEvent `json:"recent_events"`
}
