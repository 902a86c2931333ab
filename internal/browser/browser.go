// Package browser manages chromedriver-backed Chrome sessions: launching
// the driver process, attaching a Selenium WebDriver session, and tearing
// both down again. It exposes the raw selenium.WebDriver handle and leaves
// all page interaction to callers.
package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

const (
	// DefaultPort is the chromedriver listen port when none is configured.
	DefaultPort = 4444
	// DefaultImplicitWait is applied to new sessions when none is configured.
	DefaultImplicitWait = 10 * time.Second

	// driverLoggerName is the logger chromedriver's own output is attributed
	// to. The logging bootstrap keeps this logger quiet below WARN.
	driverLoggerName = "chromedriver"
)

// baseArgs are passed to Chrome on every launch.
var baseArgs = []string{
	"--disable-infobars",
	"--disable-dev-shm-usage",
	"--no-sandbox",
}

// headlessArgs are added on top of baseArgs when Config.Headless is set.
var headlessArgs = []string{
	"--headless",
	"--disable-gpu",
}

// Config holds browser settings, fixed at construction. The zero value is
// usable: chromedriver is looked up on PATH, Chrome runs headful, and the
// port and implicit wait fall back to the defaults.
type Config struct {
	// DriverPath is the chromedriver executable. Empty means look up
	// "chromedriver" on PATH.
	DriverPath string `yaml:"driver_path" mapstructure:"driver_path"`
	// Port is the port chromedriver listens on.
	Port int `yaml:"port" mapstructure:"port"`
	// Headless runs Chrome without a display.
	Headless bool `yaml:"headless" mapstructure:"headless"`
	// ImplicitWait is how long element lookups poll before giving up.
	ImplicitWait time.Duration `yaml:"implicit_wait" mapstructure:"implicit_wait"`
}

func (c Config) driverPath() string {
	if c.DriverPath == "" {
		return "chromedriver"
	}
	return c.DriverPath
}

func (c Config) port() int {
	if c.Port <= 0 {
		return DefaultPort
	}
	return c.Port
}

func (c Config) implicitWait() time.Duration {
	if c.ImplicitWait <= 0 {
		return DefaultImplicitWait
	}
	return c.ImplicitWait
}

// driverService is the part of selenium.Service the wrapper controls.
type driverService interface {
	Stop() error
}

// Chrome owns at most one running chromedriver process and the WebDriver
// session attached to it. It is not safe for concurrent use; give each
// goroutine its own instance.
type Chrome struct {
	cfg     Config
	profile *Profile

	// Construction seams, replaced by tests with fakes.
	newService func(path string, port int, opts ...selenium.ServiceOption) (driverService, error)
	newRemote  func(caps selenium.Capabilities, urlPrefix string) (selenium.WebDriver, error)

	driver  selenium.WebDriver
	service driverService
}

// Option configures a Chrome beyond its base Config.
type Option func(*Chrome)

// WithProfile layers a named profile's options on top of the base launch
// arguments.
func WithProfile(p *Profile) Option {
	return func(c *Chrome) {
		c.profile = p
	}
}

// New builds a Chrome wrapper from cfg. Nothing is launched until Start.
func New(cfg Config, opts ...Option) *Chrome {
	c := &Chrome{
		cfg: cfg,
		newService: func(path string, port int, sopts ...selenium.ServiceOption) (driverService, error) {
			return selenium.NewChromeDriverService(path, port, sopts...)
		},
		newRemote: selenium.NewRemote,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches chromedriver and attaches a WebDriver session to it,
// returning the live handle. Calling Start on an already started Chrome
// logs a warning and returns the existing handle unchanged.
func (c *Chrome) Start() (selenium.WebDriver, error) {
	log := c.logger()
	if c.driver != nil {
		log.Warn("browser already started")
		return c.driver, nil
	}

	driverLog := &zapio.Writer{Log: zap.L().Named(driverLoggerName), Level: zap.DebugLevel}
	svc, err := c.newService(c.cfg.driverPath(), c.cfg.port(), selenium.Output(driverLog))
	if err != nil {
		return nil, c.failStart(eris.Wrapf(err, "browser: start chromedriver on port %d", c.cfg.port()))
	}
	c.service = svc

	wd, err := c.newRemote(c.capabilities(), fmt.Sprintf("http://localhost:%d/wd/hub", c.cfg.port()))
	if err != nil {
		return nil, c.failStart(eris.Wrap(err, "browser: attach webdriver session"))
	}
	c.driver = wd

	if err := wd.SetImplicitWaitTimeout(c.cfg.implicitWait()); err != nil {
		return nil, c.failStart(eris.Wrap(err, "browser: set implicit wait"))
	}

	log.Info("browser started",
		zap.Int("port", c.cfg.port()),
		zap.Bool("headless", c.cfg.Headless),
		zap.Duration("implicit_wait", c.cfg.implicitWait()),
	)
	return c.driver, nil
}

// failStart logs the cause, tears down whatever Start managed to bring up,
// and converts the cause into an InitError. The teardown is best-effort:
// its own failure is logged but never masks the original cause.
func (c *Chrome) failStart(cause error) error {
	log := c.logger()
	log.Error("browser start failed", zap.Error(cause))
	if stopErr := c.Stop(); stopErr != nil {
		log.Warn("cleanup after failed start", zap.Error(stopErr))
	}
	return &InitError{Err: cause}
}

// Stop quits the WebDriver session and stops the chromedriver process.
// Both references are cleared unconditionally, even when quitting fails;
// any failure is reported as a ShutdownError after the references are gone.
// Stop on a Chrome that owns nothing is a no-op.
func (c *Chrome) Stop() error {
	if c.driver == nil && c.service == nil {
		return nil
	}

	var errs []error
	if c.driver != nil {
		if err := c.driver.Quit(); err != nil {
			errs = append(errs, eris.Wrap(err, "browser: quit webdriver session"))
		}
	}
	if c.service != nil {
		if err := c.service.Stop(); err != nil {
			errs = append(errs, eris.Wrap(err, "browser: stop chromedriver"))
		}
	}
	c.driver = nil
	c.service = nil

	if err := errors.Join(errs...); err != nil {
		c.logger().Error("browser stop failed", zap.Error(err))
		return &ShutdownError{Err: err}
	}
	c.logger().Debug("browser stopped")
	return nil
}

// With starts the browser, runs fn against the live handle, and always
// stops the browser afterwards, on every exit path including panics.
// fn's error takes precedence: a teardown failure is joined after it
// rather than replacing it, and surfaces alone only when fn succeeded.
func (c *Chrome) With(fn func(wd selenium.WebDriver) error) (err error) {
	wd, err := c.Start()
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := c.Stop(); stopErr != nil {
			if err == nil {
				err = stopErr
			} else {
				err = errors.Join(err, stopErr)
			}
		}
	}()

	if err = fn(wd); err != nil {
		c.logger().Error("browser session failed", zap.Error(err))
	}
	return err
}

// capabilities assembles the Selenium capabilities for this configuration.
func (c *Chrome) capabilities() selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(c.chromeOptions())
	return caps
}

// chromeOptions returns the Chrome launch options: the fixed args, the
// headless args when configured, then any profile extras.
func (c *Chrome) chromeOptions() chrome.Capabilities {
	args := append([]string{}, baseArgs...)
	if c.cfg.Headless {
		args = append(args, headlessArgs...)
	}
	opts := chrome.Capabilities{Args: args}
	if c.profile != nil {
		c.profile.apply(&opts)
	}
	return opts
}

func (c *Chrome) logger() *zap.Logger {
	return zap.L().With(zap.String("component", "browser"))
}
