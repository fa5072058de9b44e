package hardening

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momoterminal/termguard/pkg/buildmode"
)

type fakeWindow struct{ flags int }

func (w *fakeWindow) AddFlags(f int)   { w.flags |= f }
func (w *fakeWindow) ClearFlags(f int) { w.flags &^= f }
func (w *fakeWindow) Flags() int       { return w.flags }

func TestScreenGuard_Defaults(t *testing.T) {
	w := &fakeWindow{flags: 0x1}
	NewScreenGuard(w, buildmode.Release, nil).ApplyDefault()
	assert.Equal(t, 0x1|FlagSecure, w.flags, "release is secure by default and keeps other flags")

	w = &fakeWindow{flags: FlagSecure}
	NewScreenGuard(w, buildmode.Development, nil).ApplyDefault()
	assert.Zero(t, w.flags&FlagSecure, "development is not secure by default")
}

func TestScreenGuard_ForceSecureInDevelopment(t *testing.T) {
	w := &fakeWindow{}
	g := NewScreenGuard(w, buildmode.Development, nil)

	g.ForceSecure()
	assert.True(t, g.IsSecure())
	g.Clear()
	assert.False(t, g.IsSecure())
}

func TestScreenGuard_Protect(t *testing.T) {
	w := &fakeWindow{}
	g := NewScreenGuard(w, buildmode.Development, nil)
	g.ApplyDefault()

	restore := g.Protect()
	assert.True(t, g.IsSecure())
	restore()
	assert.False(t, g.IsSecure())
	restore()
	assert.False(t, g.IsSecure())

	g.ForceSecure()
	restore = g.Protect()
	restore()
	assert.True(t, g.IsSecure(), "restore keeps a flag that was already set")
}

func TestScreenGuard_Override(t *testing.T) {
	w := &fakeWindow{}
	g := NewScreenGuard(w, buildmode.Development, nil)
	g.SetSecureByDefault(true)
	g.ApplyDefault()
	assert.True(t, g.IsSecure())
}
