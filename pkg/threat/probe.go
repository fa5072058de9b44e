package threat

import (
	"context"
	"sync"
)

// Category groups probes by the threat they indicate.
type Category string

const (
	CategoryRoot            Category = "root"
	CategoryEmulator        Category = "emulator"
	CategoryInstrumentation Category = "instrumentation"
	CategoryDebug           Category = "debug"
)

// ProbeResult is the outcome of a single probe. Err means the probe could
// not decide; the engine treats it as not detected.
type ProbeResult struct {
	Detected bool
	Reason   string
	Err      error
}

func detected(reason string) ProbeResult { return ProbeResult{Detected: true, Reason: reason} }
func clean() ProbeResult                 { return ProbeResult{} }
func failed(err error) ProbeResult       { return ProbeResult{Err: err} }

type probe struct {
	category Category
	name     string
	run      func(ctx context.Context, env *probeEnv) ProbeResult
}

// probeEnv is shared by all probes of one check. Package and module lists
// are fetched at most once per check.
type probeEnv struct {
	dev Device
	sig *Signatures

	pkgOnce sync.Once
	pkgs    map[string]bool
	pkgErr  error

	modOnce sync.Once
	mods    []string
	modErr  error
}

func newProbeEnv(dev Device, sig *Signatures) *probeEnv {
	return &probeEnv{dev: dev, sig: sig}
}

func (e *probeEnv) packages(ctx context.Context) (map[string]bool, error) {
	e.pkgOnce.Do(func() {
		list, err := e.dev.InstalledPackages(ctx)
		if err != nil {
			e.pkgErr = err
			return
		}
		e.pkgs = make(map[string]bool, len(list))
		for _, p := range list {
			e.pkgs[p] = true
		}
	})
	return e.pkgs, e.pkgErr
}

func (e *probeEnv) modules(ctx context.Context) ([]string, error) {
	e.modOnce.Do(func() {
		e.mods, e.modErr = e.dev.LoadedModules(ctx)
	})
	return e.mods, e.modErr
}

// firstInstalled returns the first of candidates that is installed.
func (e *probeEnv) firstInstalled(ctx context.Context, candidates []string) (string, bool, error) {
	pkgs, err := e.packages(ctx)
	if err != nil {
		return "", false, err
	}
	for _, c := range candidates {
		if pkgs[c] {
			return c, true, nil
		}
	}
	return "", false, nil
}

// firstExisting returns the first path osStat can see.
func firstExisting(paths []string) (string, bool) {
	for _, p := range paths {
		if _, err := osStat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func (m PropertyMatch) matches(v string) bool {
	if m.Value != "" {
		return v == m.Value
	}
	return v != "" && containsFold(v, m.Contains)
}
