package hardening

import (
	"log/slog"
	"sync"

	"github.com/momoterminal/termguard/pkg/buildmode"
)

// FlagSecure is the window flag that blocks screenshots, screen recording
// and recents thumbnails.
const FlagSecure = 0x2000

// Window is the platform window whose flags the guard toggles.
type Window interface {
	AddFlags(flags int)
	ClearFlags(flags int)
	Flags() int
}

// ScreenGuard applies FlagSecure to a window.
type ScreenGuard struct {
	mu              sync.Mutex
	window          Window
	secureByDefault bool
	logger          *slog.Logger
}

// NewScreenGuard returns a guard that is secure by default in release
// builds and off by default in development builds.
func NewScreenGuard(w Window, mode buildmode.Mode, logger *slog.Logger) *ScreenGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenGuard{window: w, secureByDefault: !mode.IsDevelopment(), logger: logger}
}

// SetSecureByDefault overrides the build-mode default.
func (g *ScreenGuard) SetSecureByDefault(on bool) {
	g.mu.Lock()
	g.secureByDefault = on
	g.mu.Unlock()
}

// ApplyDefault sets or clears the flag according to the default.
func (g *ScreenGuard) ApplyDefault() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set(g.secureByDefault)
}

// ForceSecure sets the flag regardless of build mode. Screens showing
// PINs, balances or transaction details call it.
func (g *ScreenGuard) ForceSecure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set(true)
}

// Clear removes the flag.
func (g *ScreenGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set(false)
}

// IsSecure reports whether the flag is currently set.
func (g *ScreenGuard) IsSecure() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window.Flags()&FlagSecure != 0
}

// Protect forces the flag on and returns a function restoring the previous
// state, for a sensitive screen's lifetime.
func (g *ScreenGuard) Protect() (restore func()) {
	g.mu.Lock()
	was := g.window.Flags()&FlagSecure != 0
	g.set(true)
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.set(was)
		})
	}
}

func (g *ScreenGuard) set(on bool) {
	if on {
		g.window.AddFlags(FlagSecure)
	} else {
		g.window.ClearFlags(FlagSecure)
	}
	g.logger.Debug("screen guard", "secure", on)
}
