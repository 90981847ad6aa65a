package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/internal/application/batch"
	"github.com/volunteerhub/profile-analytics/internal/application/command"
)

type stubRecalculator struct {
	got     command.RecalculateProfilesCommand
	summary *command.Summary
	err     error
}

func (s *stubRecalculator) Handle(_ context.Context, cmd command.RecalculateProfilesCommand) (*command.Summary, error) {
	s.got = cmd
	return s.summary, s.err
}

func TestRecalculateProfilesJob_Run(t *testing.T) {
	tests := []struct {
		name    string
		summary *command.Summary
		err     error
		wantErr string
	}{
		{"clean run", &command.Summary{RunID: "r1", ProcessedCount: 10}, nil, ""},
		{"user failures only", &command.Summary{RunID: "r2", Failures: []batch.Failure{{UserID: "u-1", Reason: "facts"}}}, nil, ""},
		{"rank pass failed", &command.Summary{RunID: "r3", RankError: "snapshot read failed"}, nil, "rank pass"},
		{"cancelled", &command.Summary{RunID: "r4", Cancelled: true}, nil, "cancelled"},
		{"invalid command", nil, errors.New("batch size must be positive"), "batch size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRecalculator{summary: tt.summary, err: tt.err}
			job := NewRecalculateProfilesJob(stub, nil, RecalculateProfilesConfig{BatchSize: 200})

			err := job.Run(t.Context())
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}

			assert.True(t, stub.got.Target.AllActive)
			assert.Equal(t, 200, stub.got.BatchSize)
			assert.Equal(t, "scheduler", stub.got.Trigger)
			assert.Equal(t, tt.summary, job.LastSummary())
		})
	}
}

func TestRecalculateProfilesJob_RunWith(t *testing.T) {
	stub := &stubRecalculator{summary: &command.Summary{RunID: "r1"}}
	job := NewRecalculateProfilesJob(stub, nil, RecalculateProfilesConfig{BatchSize: 200})

	err := job.RunWith(t.Context(), command.RecalculateProfilesCommand{
		Target:    command.Target{AllActive: true},
		BatchSize: 25,
		Force:     true,
		Trigger:   "api",
	})
	require.NoError(t, err)
	assert.Equal(t, 25, stub.got.BatchSize)
	assert.True(t, stub.got.Force)
	assert.Equal(t, "api", stub.got.Trigger)

	require.NoError(t, job.RunWith(t.Context(), command.RecalculateProfilesCommand{Target: command.Target{AllActive: true}}))
	assert.Equal(t, 200, stub.got.BatchSize, "zero batch size uses the configured one")
	assert.False(t, stub.got.Force)
	assert.Equal(t, "manual", stub.got.Trigger)

	err = job.RunWith(t.Context(), "force=true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected parameters")
}
