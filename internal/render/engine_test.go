package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/sells-group/render-cli/internal/model"
	"github.com/sells-group/render-cli/internal/store"
)

// fakeDriver implements the slice of selenium.WebDriver the engine drives.
// The embedded interface panics on anything else.
type fakeDriver struct {
	selenium.WebDriver

	getErr    func(url string) error
	sourceErr error
	gets      []string
	pngs      int
}

func (d *fakeDriver) SetPageLoadTimeout(timeout time.Duration) error { return nil }

func (d *fakeDriver) Get(url string) error {
	d.gets = append(d.gets, url)
	if d.getErr != nil {
		return d.getErr(url)
	}
	return nil
}

func (d *fakeDriver) Title() (string, error) { return "Fake Page", nil }

func (d *fakeDriver) PageSource() (string, error) {
	if d.sourceErr != nil {
		return "", d.sourceErr
	}
	return "<html><body>rendered</body></html>", nil
}

func (d *fakeDriver) Screenshot() ([]byte, error) {
	d.pngs++
	return []byte("\x89PNG"), nil
}

// fakeBrowser is a scopedBrowser that hands the fake driver to the body.
type fakeBrowser struct {
	drv      *fakeDriver
	startErr error
	scopes   atomic.Int64
}

func (b *fakeBrowser) With(fn func(wd selenium.WebDriver) error) error {
	if b.startErr != nil {
		return b.startErr
	}
	b.scopes.Add(1)
	return fn(b.drv)
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeBrowser, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000 // keep tests fast
	}

	e := NewEngine(st, cfg)
	br := &fakeBrowser{drv: &fakeDriver{}}
	e.newBrowser = func() scopedBrowser { return br }
	return e, br, st
}

func TestEngine_Run_RendersAllPages(t *testing.T) {
	e, br, st := newTestEngine(t, Config{})
	urls := []string{"https://acme.com", "https://acme.com/about"}

	sess, err := e.Run(context.Background(), urls)

	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusComplete, sess.Status)
	assert.Equal(t, 2, sess.PagesTotal)
	assert.Equal(t, 0, sess.PagesFailed)
	assert.ElementsMatch(t, urls, br.drv.gets)

	pages, err := st.ListPages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.False(t, p.Failed())
		assert.Equal(t, "Fake Page", p.Title)
		assert.NotEmpty(t, p.File)

		data, err := os.ReadFile(filepath.Join(sess.OutputDir, p.File))
		require.NoError(t, err)
		assert.Contains(t, string(data), "rendered")
		assert.Equal(t, int64(len(data)), p.Bytes)
	}
}

func TestEngine_Run_RecordsSessionInStore(t *testing.T) {
	e, _, st := newTestEngine(t, Config{})

	sess, err := e.Run(context.Background(), []string{"https://acme.com"})
	require.NoError(t, err)

	got, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusComplete, got.Status)
	require.NotNil(t, got.FinishedAt)
}

func TestEngine_Run_PageFailureDoesNotAbort(t *testing.T) {
	e, br, st := newTestEngine(t, Config{})
	br.drv.getErr = func(url string) error {
		if url == "https://acme.com/broken" {
			return errors.New("net::ERR_CONNECTION_REFUSED")
		}
		return nil
	}

	sess, err := e.Run(context.Background(), []string{
		"https://acme.com",
		"https://acme.com/broken",
		"https://acme.com/about",
	})

	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusComplete, sess.Status)
	assert.Equal(t, 1, sess.PagesFailed)

	pages, err := st.ListPages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	var failed int
	for _, p := range pages {
		if p.Failed() {
			failed++
			assert.Contains(t, p.Error, "ERR_CONNECTION_REFUSED")
			assert.Empty(t, p.File)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestEngine_Run_AllPagesFailed_SessionFailed(t *testing.T) {
	e, br, _ := newTestEngine(t, Config{})
	br.drv.getErr = func(string) error { return errors.New("tab crashed") }

	sess, err := e.Run(context.Background(), []string{"https://a.example", "https://b.example"})

	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, sess.Status)
	assert.Equal(t, 2, sess.PagesFailed)
}

func TestEngine_Run_NoURLs(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})

	_, err := e.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no urls")
}

func TestEngine_Run_BrowserStartFailure(t *testing.T) {
	e, br, st := newTestEngine(t, Config{})
	br.startErr = errors.New("no chromedriver on PATH")

	sess, err := e.Run(context.Background(), []string{"https://acme.com"})

	require.Error(t, err)
	assert.ErrorIs(t, err, br.startErr)

	// The session still reaches a terminal state.
	got, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, got.Status)
}

func TestEngine_Run_Screenshots(t *testing.T) {
	e, br, _ := newTestEngine(t, Config{Screenshot: true})

	sess, err := e.Run(context.Background(), []string{"https://acme.com"})

	require.NoError(t, err)
	assert.Equal(t, 1, br.drv.pngs)

	entries, err := os.ReadDir(sess.OutputDir)
	require.NoError(t, err)
	var pngs int
	for _, ent := range entries {
		if filepath.Ext(ent.Name()) == ".png" {
			pngs++
		}
	}
	assert.Equal(t, 1, pngs)
}

func TestEngine_Run_WorkersShareTheBatch(t *testing.T) {
	e, _, st := newTestEngine(t, Config{Workers: 3})

	// Each worker gets its own scope; use one browser per call.
	var browsers atomic.Int64
	e.newBrowser = func() scopedBrowser {
		browsers.Add(1)
		return &fakeBrowser{drv: &fakeDriver{}}
	}

	var urls []string
	for i := 0; i < 9; i++ {
		urls = append(urls, fmt.Sprintf("https://acme.com/page/%d", i))
	}

	sess, err := e.Run(context.Background(), urls)

	require.NoError(t, err)
	assert.Equal(t, int64(3), browsers.Load())

	pages, err := st.ListPages(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 9)
}

func TestEngine_Run_ContextCancelled(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, []string{"https://acme.com"})
	require.Error(t, err)
}
