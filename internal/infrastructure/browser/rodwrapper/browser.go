package rodwrapper

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type LaunchConfig struct {
	Headless   bool
	NoSandbox  bool
	DevTools   bool
	SlowMotion time.Duration
	Trace      bool
	// Bin is an explicit browser binary; empty lets the launcher find or fetch one.
	Bin string
	// ControlURL connects to an already running browser instead of launching.
	ControlURL string
}

// Browser owns a connected *rod.Browser and, when it launched one, the
// process behind it.
type Browser struct {
	*rod.Browser
	launcher *launcher.Launcher
}

func Launch(cfg LaunchConfig) (*Browser, error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().
			Headless(cfg.Headless).
			Devtools(cfg.DevTools).
			NoSandbox(cfg.NoSandbox).
			Delete("use-mock-keychain").
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-setuid-sandbox")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Trace(cfg.Trace)
	if cfg.SlowMotion > 0 {
		b = b.SlowMotion(cfg.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &Browser{Browser: b, launcher: l}, nil
}

// NewPage opens a blank tab.
func (b *Browser) NewPage() (*rod.Page, error) {
	return b.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// Close closes the connection and kills a process we started.
func (b *Browser) Close() {
	if b.Browser != nil {
		_ = b.Browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}
