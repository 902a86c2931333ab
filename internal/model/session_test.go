package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status SessionStatus
		want   string
	}{
		{SessionStatusRunning, "running"},
		{SessionStatusComplete, "complete"},
		{SessionStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestSessionDuration(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	s := Session{StartedAt: start, FinishedAt: &end}
	assert.Equal(t, 90*time.Second, s.Duration())

	running := Session{StartedAt: time.Now().Add(-time.Minute)}
	assert.Greater(t, running.Duration(), 59*time.Second)
}

func TestPageFailed(t *testing.T) {
	t.Parallel()

	assert.False(t, Page{URL: "https://example.com"}.Failed())
	assert.True(t, Page{URL: "https://example.com", Error: "timeout"}.Failed())
}
