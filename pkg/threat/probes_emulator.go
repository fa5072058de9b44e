package threat

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

var emulatorProbes = []probe{
	{CategoryEmulator, "build_fingerprint", probeBuildMarkers},
	{CategoryEmulator, "suspicious_props", probeSuspiciousProps},
	{CategoryEmulator, "emulator_files", probeEmulatorFiles},
	{CategoryEmulator, "operator_name", probeOperatorName},
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func probeBuildMarkers(ctx context.Context, env *probeEnv) ProbeResult {
	props := make([]string, 0, len(env.sig.Emulator.BuildMarkers))
	for p := range env.sig.Emulator.BuildMarkers {
		props = append(props, p)
	}
	sort.Strings(props)

	var errs int
	for _, prop := range props {
		v, err := env.dev.SystemProperty(ctx, prop)
		if err != nil {
			errs++
			continue
		}
		if v == "" {
			continue
		}
		for _, marker := range env.sig.Emulator.BuildMarkers[prop] {
			if containsFold(v, marker) {
				return detected(fmt.Sprintf("emulator build property: %s=%q matches %q", prop, v, marker))
			}
		}
	}
	if errs > 0 && errs == len(props) {
		return failed(fmt.Errorf("all %d build property reads failed", errs))
	}
	return clean()
}

func probeSuspiciousProps(ctx context.Context, env *probeEnv) ProbeResult {
	for _, m := range env.sig.Emulator.SuspiciousProps {
		v, err := env.dev.SystemProperty(ctx, m.Name)
		if err != nil {
			continue
		}
		if m.matches(v) {
			return detected(fmt.Sprintf("emulator hardware tag: %s=%s", m.Name, v))
		}
	}
	return clean()
}

func probeEmulatorFiles(_ context.Context, env *probeEnv) ProbeResult {
	if p, ok := firstExisting(env.sig.Emulator.Files); ok {
		return detected("emulator file present: " + p)
	}
	return clean()
}

func probeOperatorName(ctx context.Context, env *probeEnv) ProbeResult {
	name, err := env.dev.NetworkOperatorName(ctx)
	if err != nil {
		return failed(err)
	}
	if strings.TrimSpace(name) == "" {
		return clean()
	}
	for _, marker := range env.sig.Emulator.OperatorMarkers {
		if containsFold(name, marker) {
			return detected(fmt.Sprintf("emulator network operator: %q", name))
		}
	}
	return clean()
}
