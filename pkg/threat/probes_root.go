package threat

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// defaultAndroidPath is used when PATH is unset in the app process.
const defaultAndroidPath = "/sbin:/system/sbin:/system/bin:/system/xbin:/vendor/bin:/odm/bin"

var rootProbes = []probe{
	{CategoryRoot, "root_binaries", probeRootBinaries},
	{CategoryRoot, "root_management_packages", probeRootPackages},
	{CategoryRoot, "su_on_path", probeSuOnPath},
	{CategoryRoot, "root_cloaking_packages", probeCloakingPackages},
	{CategoryRoot, "dangerous_props", probeDangerousProps},
	{CategoryRoot, "system_mount_rw", probeSystemMountRW},
}

func probeRootBinaries(_ context.Context, env *probeEnv) ProbeResult {
	if p, ok := firstExisting(env.sig.Root.BinaryPaths); ok {
		return detected("root binary present: " + p)
	}
	return clean()
}

func probeRootPackages(ctx context.Context, env *probeEnv) ProbeResult {
	pkg, ok, err := env.firstInstalled(ctx, env.sig.Root.ManagementPackages)
	if err != nil {
		return failed(err)
	}
	if ok {
		return detected("root management app installed: " + pkg)
	}
	return clean()
}

func probeSuOnPath(context.Context, *probeEnv) ProbeResult {
	path := osGetenv("PATH")
	if path == "" {
		path = defaultAndroidPath
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, "su")
		if _, err := osStat(candidate); err == nil {
			return detected("su binary on PATH: " + candidate)
		}
	}
	return clean()
}

func probeCloakingPackages(ctx context.Context, env *probeEnv) ProbeResult {
	pkg, ok, err := env.firstInstalled(ctx, env.sig.Root.CloakingPackages)
	if err != nil {
		return failed(err)
	}
	if ok {
		return detected("root cloaking app installed: " + pkg)
	}
	return clean()
}

func probeDangerousProps(ctx context.Context, env *probeEnv) ProbeResult {
	var errs int
	for _, m := range env.sig.Root.DangerousProps {
		v, err := env.dev.SystemProperty(ctx, m.Name)
		if err != nil {
			errs++
			continue
		}
		if m.matches(v) {
			return detected(fmt.Sprintf("dangerous system property: %s=%s", m.Name, v))
		}
	}
	if errs > 0 && errs == len(env.sig.Root.DangerousProps) {
		return failed(fmt.Errorf("all %d property reads failed", errs))
	}
	return clean()
}

func probeSystemMountRW(_ context.Context, env *probeEnv) ProbeResult {
	data, err := osReadFile("/proc/mounts")
	if err != nil {
		return failed(err)
	}
	if mp, ok := writableMount(data, env.sig.Root.ReadOnlyMounts); ok {
		return detected("read-only partition mounted read-write: " + mp)
	}
	return clean()
}

// writableMount finds the first of mountPoints whose /proc/mounts options
// include rw.
func writableMount(procMounts []byte, mountPoints []string) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(procMounts))
	for sc.Scan() {
		// device mountpoint fstype options dump pass
		f := strings.Fields(sc.Text())
		if len(f) < 4 || !slices.Contains(mountPoints, f[1]) {
			continue
		}
		if slices.Contains(strings.Split(f[3], ","), "rw") {
			return f[1], true
		}
	}
	return "", false
}
