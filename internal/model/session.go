package model

import "time"

// SessionStatus represents the current state of a render session.
type SessionStatus string

const (
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusFailed   SessionStatus = "failed"
)

// Session represents one fetch invocation: a batch of URLs rendered
// through a real browser, with output written under OutputDir.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	OutputDir   string        `json:"output_dir"`
	PagesTotal  int           `json:"pages_total"`
	PagesFailed int           `json:"pages_failed"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// Duration returns the session's wall-clock duration, or the elapsed
// time so far when the session has not finished.
func (s Session) Duration() time.Duration {
	if s.FinishedAt == nil {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Page represents a single rendered page within a session.
type Page struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	File       string    `json:"file,omitempty"`
	Bytes      int64     `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Failed reports whether the render of this page produced no output.
func (p Page) Failed() bool {
	return p.Error != ""
}
