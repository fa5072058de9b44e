package threat

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var instrumentationProbes = []probe{
	{CategoryInstrumentation, "hooking_framework", probeHookingFramework},
	{CategoryInstrumentation, "frida", probeFrida},
	{CategoryInstrumentation, "patching_artifacts", probePatchingArtifacts},
}

// tcpListen is the st column value for a listening socket in /proc/net/tcp.
const tcpListen = "0A"

func probeHookingFramework(ctx context.Context, env *probeEnv) ProbeResult {
	mods, modErr := env.modules(ctx)
	if modErr == nil {
		if m, marker, ok := matchModule(mods, env.sig.Instrumentation.HookingModules); ok {
			return detected(fmt.Sprintf("hooking framework loaded: %s (%s)", filepath.Base(m), marker))
		}
	}
	pkg, ok, pkgErr := env.firstInstalled(ctx, env.sig.Instrumentation.HookingPackages)
	if ok {
		return detected("hooking framework installed: " + pkg)
	}
	if modErr != nil && pkgErr != nil {
		return failed(errors.Join(modErr, pkgErr))
	}
	return clean()
}

func probeFrida(ctx context.Context, env *probeEnv) ProbeResult {
	if p, ok := firstExisting(env.sig.Instrumentation.FridaPaths); ok {
		return detected("instrumentation server binary present: " + p)
	}
	if mods, err := env.modules(ctx); err == nil {
		if m, marker, ok := matchModule(mods, env.sig.Instrumentation.FridaLibraries); ok {
			return detected(fmt.Sprintf("instrumentation agent loaded: %s (%s)", filepath.Base(m), marker))
		}
	}
	var readErrs []error
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		data, err := osReadFile(table)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				readErrs = append(readErrs, err)
			}
			continue
		}
		if port, ok := listeningOn(data, env.sig.Instrumentation.FridaPorts); ok {
			return detected(fmt.Sprintf("instrumentation server listening on port %d", port))
		}
	}
	if len(readErrs) == 2 {
		return failed(errors.Join(readErrs...))
	}
	return clean()
}

func probePatchingArtifacts(_ context.Context, env *probeEnv) ProbeResult {
	if p, ok := firstExisting(env.sig.Instrumentation.PatchingPaths); ok {
		return detected("binary patching artifact present: " + p)
	}
	return clean()
}

func matchModule(mods, markers []string) (module, marker string, ok bool) {
	for _, m := range mods {
		for _, mk := range markers {
			if containsFold(m, mk) {
				return m, mk, true
			}
		}
	}
	return "", "", false
}

// listeningOn scans a /proc/net/tcp table for a listening socket on any
// of ports. Local addresses are "HEXIP:HEXPORT", e.g. 0100007F:69A2 for
// 127.0.0.1:27042.
func listeningOn(table []byte, ports []int) (int, bool) {
	want := make(map[string]int, len(ports))
	for _, p := range ports {
		want[fmt.Sprintf("%04X", p)] = p
	}
	sc := bufio.NewScanner(bytes.NewReader(table))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		// sl local_address rem_address st ...
		if len(f) < 4 || f[0] == "sl" {
			continue
		}
		_, hexPort, ok := strings.Cut(f[1], ":")
		if !ok || !strings.EqualFold(f[3], tcpListen) {
			continue
		}
		if p, hit := want[strings.ToUpper(hexPort)]; hit {
			return p, true
		}
	}
	return 0, false
}
