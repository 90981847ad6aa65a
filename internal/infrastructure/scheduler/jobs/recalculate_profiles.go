// Package jobs contains the scheduled jobs of the analytics worker.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/volunteerhub/profile-analytics/internal/application/command"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE PROFILES JOB
// ══════════════════════════════════════════════════════════════════════════════

// Recalculator runs a recalculation command.
type Recalculator interface {
	Handle(ctx context.Context, cmd command.RecalculateProfilesCommand) (*command.Summary, error)
}

// RecalculateProfilesConfig contains configuration for the job.
type RecalculateProfilesConfig struct {
	BatchSize int

	// Force recomputes users whose cache entry is still fresh.
	Force bool
}

// RecalculateProfilesJob periodically recalculates every active user,
// re-ranks the population and refreshes the analytics cache.
type RecalculateProfilesJob struct {
	handler Recalculator
	logger  *logger.Logger
	config  RecalculateProfilesConfig

	last atomic.Pointer[command.Summary]
}

// NewRecalculateProfilesJob creates a new job.
func NewRecalculateProfilesJob(handler Recalculator, log *logger.Logger, config RecalculateProfilesConfig) *RecalculateProfilesJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RecalculateProfilesJob{
		handler: handler,
		logger:  log.With(logger.Component("recalculate_job")),
		config:  config,
	}
}

// Name returns the job name.
func (j *RecalculateProfilesJob) Name() string {
	return "recalculate_profiles"
}

// Description returns a human-readable description.
func (j *RecalculateProfilesJob) Description() string {
	return "Recomputes scores for all active users, ranks the population and refreshes analytics"
}

// Run executes one full recalculation. Individual user failures are
// reported in the summary; the job itself fails only when the run was
// cancelled or the rank pass did not commit.
func (j *RecalculateProfilesJob) Run(ctx context.Context) error {
	return j.run(ctx, command.RecalculateProfilesCommand{
		Target:    command.Target{AllActive: true},
		BatchSize: j.config.BatchSize,
		Force:     j.config.Force,
		Trigger:   "scheduler",
	})
}

// RunWith executes one run of a caller-supplied command instead of the
// configured one. params must be a command.RecalculateProfilesCommand; a zero
// batch size falls back to the configured one.
func (j *RecalculateProfilesJob) RunWith(ctx context.Context, params any) error {
	cmd, ok := params.(command.RecalculateProfilesCommand)
	if !ok {
		return fmt.Errorf("%s: unexpected parameters %T", j.Name(), params)
	}
	if cmd.BatchSize == 0 {
		cmd.BatchSize = j.config.BatchSize
	}
	if cmd.Trigger == "" {
		cmd.Trigger = "manual"
	}
	return j.run(ctx, cmd)
}

func (j *RecalculateProfilesJob) run(ctx context.Context, cmd command.RecalculateProfilesCommand) error {
	summary, err := j.handler.Handle(ctx, cmd)
	if err != nil {
		return err
	}
	j.last.Store(summary)

	if len(summary.Failures) > 0 || len(summary.AnalyticsFailures) > 0 {
		j.logger.Warn("users failed during run",
			logger.RunID(summary.RunID),
			logger.String("trigger", cmd.Trigger),
			logger.Int("failed", len(summary.Failures)),
			logger.Int("analytics_failed", len(summary.AnalyticsFailures)),
		)
	}

	switch {
	case summary.Cancelled:
		return fmt.Errorf("run %s cancelled after %d users", summary.RunID, summary.ProcessedCount)
	case summary.RankError != "":
		return fmt.Errorf("run %s: rank pass: %s", summary.RunID, summary.RankError)
	}
	return nil
}

// LastSummary returns the summary of the most recent completed run, or nil.
func (j *RecalculateProfilesJob) LastSummary() *command.Summary {
	return j.last.Load()
}
