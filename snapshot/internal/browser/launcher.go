package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the Chrome launcher.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome per session.
	RemoteURL string

	// Bin is the Chrome binary. Empty lets rod find or download one.
	Bin string

	// Sandbox keeps Chrome's sandbox. Containers usually need it off.
	Sandbox bool

	// Stealth opens pages through go-rod/stealth.
	Stealth bool

	ViewportWidth  int
	ViewportHeight int

	// DrainTimeout bounds how long Close waits for in-flight response
	// bodies once the event loop has stopped. Default: 5s.
	DrainTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 1080
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Chrome launches one Chrome process (or one incognito context on a remote
// Chrome) per session. Sessions never share cookies, cache or storage.
type Chrome struct {
	cfg Config
}

// NewChrome creates a Launcher backed by Chrome.
func NewChrome(cfg Config) *Chrome {
	cfg.defaults()
	return &Chrome{cfg: cfg}
}

// Launch starts Chrome, opens a blank tab with the configured viewport and
// enables the Network domain. On error nothing is left running.
func (c *Chrome) Launch(ctx context.Context) (Session, error) {
	log := c.cfg.Logger
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if c.cfg.RemoteURL != "" {
		wsURL = c.cfg.RemoteURL
	} else {
		l := launcher.New().Headless(true).NoSandbox(!c.cfg.Sandbox)
		if c.cfg.Bin != "" {
			l = l.Bin(c.cfg.Bin)
		}
		l = l.Set("disable-dev-shm-usage").
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			l.Cleanup()
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
	}

	// The websocket is dialed here so it can be released on every exit
	// path, including a shared remote Chrome that must stay up.
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		cleanupLauncher(lnch)
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	// Not bound to ctx: Close must work after the caller's deadline.
	b := rod.New().Client(cdp.New().Start(ws))
	if err := b.Connect(); err != nil {
		ws.Close()
		cleanupLauncher(lnch)
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	owner := b
	if lnch == nil {
		// Shared remote Chrome: isolate the session in its own context.
		inc, err := b.Incognito()
		if err != nil {
			closeBrowser(b, b, lnch, ws)
			return nil, fmt.Errorf("browser: incognito: %w", err)
		}
		owner = inc
	}

	page, err := c.openPage(owner)
	if err != nil {
		closeBrowser(b, owner, lnch, ws)
		return nil, err
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		page.Close()
		closeBrowser(b, owner, lnch, ws)
		return nil, fmt.Errorf("browser: enable network: %w", err)
	}

	log.Debug("browser: session launched", "remote", lnch == nil, "stealth", c.cfg.Stealth)

	return newSession(sessionParts{
		browser: b,
		owner:   owner,
		page:    page,
		lnch:    lnch,
		conn:    ws,
		drain:   c.cfg.DrainTimeout,
		logger:  log,
	}), nil
}

func (c *Chrome) openPage(b *rod.Browser) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if c.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.ViewportWidth,
		Height:            c.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}
	return page, nil
}

// closeBrowser releases whatever Launch acquired. For a remote Chrome only
// the incognito context is closed, never the shared browser. The websocket
// is always released.
func closeBrowser(b, owner *rod.Browser, lnch *launcher.Launcher, conn io.Closer) error {
	var err error
	if lnch == nil {
		if owner != nil && owner != b {
			err = owner.Close()
		}
	} else {
		err = b.Close()
	}
	if conn != nil {
		// Browser.close may already have dropped the socket.
		conn.Close()
	}
	cleanupLauncher(lnch)
	return err
}

func cleanupLauncher(l *launcher.Launcher) {
	if l != nil {
		l.Kill()
		l.Cleanup()
	}
}
