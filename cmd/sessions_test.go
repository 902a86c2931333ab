package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/render-cli/internal/model"
)

func finishedSession(status model.SessionStatus, total, failed int, dur time.Duration) model.Session {
	started := time.Now().UTC().Add(-dur)
	finished := started.Add(dur)
	return model.Session{
		ID:          "0192aa37-1111-2222-3333-444455556666",
		Status:      status,
		PagesTotal:  total,
		PagesFailed: failed,
		StartedAt:   started,
		FinishedAt:  &finished,
	}
}

func TestComputeSessionStats(t *testing.T) {
	sessions := []model.Session{
		finishedSession(model.SessionStatusComplete, 10, 1, 20*time.Second),
		finishedSession(model.SessionStatusComplete, 5, 0, 10*time.Second),
		finishedSession(model.SessionStatusFailed, 3, 3, 30*time.Second),
		{ID: "running", Status: model.SessionStatusRunning, PagesTotal: 2, StartedAt: time.Now().UTC()},
	}

	s := computeSessionStats(sessions)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 20, s.PagesTotal)
	assert.Equal(t, 4, s.PagesFailed)
	assert.InDelta(t, 20.0, s.AvgDurSecs, 0.1)
}

func TestComputeSessionStats_Empty(t *testing.T) {
	s := computeSessionStats(nil)

	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.AvgDurSecs)
}

func TestFormatSessionsList(t *testing.T) {
	var buf bytes.Buffer
	formatSessionsList(&buf, []model.Session{
		finishedSession(model.SessionStatusComplete, 4, 1, 12*time.Second),
	})

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "0192aa37")
	assert.NotContains(t, out, "444455556666") // IDs are truncated
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "12s")
}

func TestFormatSessionStats(t *testing.T) {
	var buf bytes.Buffer
	formatSessionStats(&buf, sessionStats{
		Total: 2, Complete: 1, Failed: 1,
		PagesTotal: 8, PagesFailed: 2,
		AvgDurSecs: 3.25,
	})

	out := buf.String()
	assert.Contains(t, out, "Total sessions:")
	assert.Contains(t, out, "Pages rendered:")
	assert.Contains(t, out, "6") // 8 total - 2 failed
	assert.Contains(t, out, "3.2s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0192aa37", truncateID("0192aa37-1111-2222-3333-444455556666"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestSessionsCmd_Metadata(t *testing.T) {
	assert.Equal(t, "sessions", sessionsCmd.Use)
	subs := make([]string, 0, 3)
	for _, c := range sessionsCmd.Commands() {
		subs = append(subs, strings.Fields(c.Use)[0])
	}
	assert.ElementsMatch(t, []string{"list", "show", "stats"}, subs)
}
