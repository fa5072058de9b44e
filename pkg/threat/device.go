package threat

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

// Device exposes the platform state probes inspect beyond the filesystem.
type Device interface {
	InstalledPackages(ctx context.Context) ([]string, error)
	SystemProperty(ctx context.Context, name string) (string, error)
	// Setting reads a settings provider value such as global/adb_enabled.
	// Unset values read as "".
	Setting(ctx context.Context, namespace, name string) (string, error)
	NetworkOperatorName(ctx context.Context) (string, error)
	// LoadedModules lists file paths mapped into the current process.
	LoadedModules(ctx context.Context) ([]string, error)
}

// ShellDevice reads device state through the Android shell tools (pm,
// getprop, settings) and procfs.
type ShellDevice struct {
	// Timeout bounds each shell invocation. Zero means 3s.
	Timeout time.Duration
}

func (d ShellDevice) run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := execCommand(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

func (d ShellDevice) InstalledPackages(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "pm", "list", "packages")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if p, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "package:"); ok && p != "" {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs, sc.Err()
}

func (d ShellDevice) SystemProperty(ctx context.Context, name string) (string, error) {
	out, err := d.run(ctx, "getprop", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (d ShellDevice) Setting(ctx context.Context, namespace, name string) (string, error) {
	out, err := d.run(ctx, "settings", "get", namespace, name)
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(out)
	if v == "null" {
		return "", nil
	}
	return v, nil
}

func (d ShellDevice) NetworkOperatorName(ctx context.Context) (string, error) {
	return d.SystemProperty(ctx, "gsm.operator.alpha")
}

func (d ShellDevice) LoadedModules(context.Context) ([]string, error) {
	data, err := osReadFile("/proc/self/maps")
	if err != nil {
		return nil, err
	}
	return parseMaps(data), nil
}

// parseMaps returns the distinct pathnames in a /proc/<pid>/maps dump.
func parseMaps(data []byte) []string {
	seen := map[string]bool{}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	return out
}

// StaticDevice serves fixed values. It represents hosts without Android
// shell tools and is the fake used in tests. Err, when set, is returned
// from every method.
type StaticDevice struct {
	Packages   []string
	Properties map[string]string
	// Settings is keyed by "namespace/name".
	Settings map[string]string
	Operator string
	Modules  []string
	Err      error
}

func (d StaticDevice) InstalledPackages(context.Context) ([]string, error) {
	return d.Packages, d.Err
}

func (d StaticDevice) SystemProperty(_ context.Context, name string) (string, error) {
	return d.Properties[name], d.Err
}

func (d StaticDevice) Setting(_ context.Context, namespace, name string) (string, error) {
	return d.Settings[namespace+"/"+name], d.Err
}

func (d StaticDevice) NetworkOperatorName(context.Context) (string, error) {
	return d.Operator, d.Err
}

func (d StaticDevice) LoadedModules(context.Context) ([]string, error) {
	return d.Modules, d.Err
}
