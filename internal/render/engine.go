// Package render orchestrates browser-backed page rendering: it fans a
// batch of URLs out to workers, drives each page through a Chrome session,
// writes the rendered DOM to disk, and records the results as a session in
// the store. The page source is persisted verbatim; nothing is parsed.
package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tebeka/selenium"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/render-cli/internal/browser"
	"github.com/sells-group/render-cli/internal/model"
	"github.com/sells-group/render-cli/internal/store"
)

const (
	// DefaultPageTimeout bounds a single page load when none is configured.
	DefaultPageTimeout = 30 * time.Second
	// DefaultRatePerSec is the politeness limit between page loads when
	// none is configured.
	DefaultRatePerSec = 1.0
)

// Config controls a render engine.
type Config struct {
	Browser     browser.Config
	Profile     *browser.Profile
	OutputDir   string
	Workers     int
	RatePerSec  float64
	PageTimeout time.Duration
	Screenshot  bool
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c Config) pageTimeout() time.Duration {
	if c.PageTimeout <= 0 {
		return DefaultPageTimeout
	}
	return c.PageTimeout
}

func (c Config) ratePerSec() float64 {
	if c.RatePerSec <= 0 {
		return DefaultRatePerSec
	}
	return c.RatePerSec
}

// scopedBrowser is the slice of browser.Chrome the engine uses: scoped
// acquisition only, never a bare handle.
type scopedBrowser interface {
	With(fn func(wd selenium.WebDriver) error) error
}

// Engine renders batches of URLs through per-worker Chrome sessions.
type Engine struct {
	store   store.Store
	cfg     Config
	limiter *rate.Limiter

	// newBrowser builds one browser per worker. Swapped by tests; a
	// Chrome wrapper is single-owner, so workers never share one.
	newBrowser func() scopedBrowser
}

// NewEngine creates a render engine on top of st.
func NewEngine(st store.Store, cfg Config) *Engine {
	e := &Engine{
		store:   st,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.ratePerSec()), 1),
	}
	e.newBrowser = func() scopedBrowser {
		var opts []browser.Option
		if cfg.Profile != nil {
			opts = append(opts, browser.WithProfile(cfg.Profile))
		}
		return browser.New(cfg.Browser, opts...)
	}
	return e
}

// Run renders urls into the configured output directory and records the
// batch as a session. Individual page failures are recorded and counted
// but do not abort the run; a worker that cannot start its browser does.
func (e *Engine) Run(ctx context.Context, urls []string) (*model.Session, error) {
	sess, err := e.Begin(ctx, urls)
	if err != nil {
		return nil, err
	}
	return e.Render(ctx, sess, urls)
}

// Begin creates the output directory and records a new running session
// for urls. Callers that want the session id before rendering starts
// (the webhook server) call Begin themselves and then Render.
func (e *Engine) Begin(ctx context.Context, urls []string) (*model.Session, error) {
	if len(urls) == 0 {
		return nil, eris.New("render: no urls")
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "render: create output dir %s", e.cfg.OutputDir)
	}

	sess := &model.Session{
		ID:         uuid.New().String(),
		Status:     model.SessionStatusRunning,
		OutputDir:  e.cfg.OutputDir,
		PagesTotal: len(urls),
		StartedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	zap.L().Info("session started",
		zap.String("component", "render.engine"),
		zap.String("session", sess.ID),
		zap.Int("pages", len(urls)),
		zap.Int("workers", e.cfg.workers()),
	)
	return sess, nil
}

// Render fans urls out to the workers and drives sess to a terminal state.
func (e *Engine) Render(ctx context.Context, sess *model.Session, urls []string) (*model.Session, error) {
	log := zap.L().With(zap.String("component", "render.engine"))

	work := make(chan string)
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, u := range urls {
			select {
			case work <- u:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < e.cfg.workers(); i++ {
		g.Go(func() error {
			return e.runWorker(gctx, sess.ID, work, &failed)
		})
	}

	runErr := g.Wait()

	status := model.SessionStatusComplete
	if runErr != nil || int(failed.Load()) == len(urls) {
		status = model.SessionStatusFailed
	}
	sess.Status = status
	sess.PagesFailed = int(failed.Load())

	// Completion is recorded even when the run failed, so the session's
	// final state is always visible.
	if err := e.store.CompleteSession(context.WithoutCancel(ctx), sess.ID, status, sess.PagesFailed); err != nil {
		log.Error("record session completion", zap.String("session", sess.ID), zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	now := time.Now().UTC()
	sess.FinishedAt = &now

	log.Info("session finished",
		zap.String("session", sess.ID),
		zap.String("status", string(status)),
		zap.Int("failed", sess.PagesFailed),
		zap.Duration("elapsed", sess.Duration()),
	)
	return sess, runErr
}

// runWorker holds one browser for its whole share of the batch and renders
// URLs from work until the channel drains or the context ends.
func (e *Engine) runWorker(ctx context.Context, sessionID string, work <-chan string, failed *atomic.Int64) error {
	br := e.newBrowser()
	return br.With(func(wd selenium.WebDriver) error {
		if err := wd.SetPageLoadTimeout(e.cfg.pageTimeout()); err != nil {
			return eris.Wrap(err, "render: set page load timeout")
		}

		for u := range work {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}

			p := e.renderPage(wd, sessionID, u)
			if p.Failed() {
				failed.Add(1)
			}
			if err := e.store.SavePage(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// renderPage drives one page load and returns its record. Failures land in
// the record's Error field; they are never retried.
func (e *Engine) renderPage(wd selenium.WebDriver, sessionID, rawURL string) *model.Page {
	log := zap.L().With(
		zap.String("component", "render.engine"),
		zap.String("session", sessionID),
		zap.String("url", rawURL),
	)

	start := time.Now()
	p := &model.Page{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		URL:       rawURL,
		FetchedAt: start.UTC(),
	}
	fail := func(err error) *model.Page {
		p.Error = err.Error()
		p.DurationMS = time.Since(start).Milliseconds()
		log.Warn("page render failed", zap.Error(err))
		return p
	}

	if err := wd.Get(rawURL); err != nil {
		return fail(eris.Wrap(err, "render: navigate"))
	}

	// The title comes from the driver; no parsing happens here.
	title, err := wd.Title()
	if err != nil {
		return fail(eris.Wrap(err, "render: read title"))
	}
	p.Title = title

	source, err := wd.PageSource()
	if err != nil {
		return fail(eris.Wrap(err, "render: read page source"))
	}

	name := Filename(rawURL)
	path := filepath.Join(e.cfg.OutputDir, name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fail(eris.Wrapf(err, "render: write %s", path))
	}
	p.File = name
	p.Bytes = int64(len(source))

	if e.cfg.Screenshot {
		if err := e.saveScreenshot(wd, name); err != nil {
			return fail(err)
		}
	}

	p.DurationMS = time.Since(start).Milliseconds()
	log.Debug("page rendered",
		zap.String("file", name),
		zap.Int64("bytes", p.Bytes),
		zap.Int64("duration_ms", p.DurationMS),
	)
	return p
}

func (e *Engine) saveScreenshot(wd selenium.WebDriver, htmlName string) error {
	png, err := wd.Screenshot()
	if err != nil {
		return eris.Wrap(err, "render: take screenshot")
	}
	path := filepath.Join(e.cfg.OutputDir, strings.TrimSuffix(htmlName, ".html")+".png")
	return eris.Wrapf(os.WriteFile(path, png, 0o644), "render: write %s", path)
}
