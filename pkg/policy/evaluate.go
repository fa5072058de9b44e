package policy

import (
	"time"

	"github.com/momoterminal/termguard/pkg/buildmode"
	"github.com/momoterminal/termguard/pkg/threat"
)

const (
	msgRooted          = "Device appears to be rooted"
	msgEmulator        = "App is running on an emulator"
	msgInstrumentation = "Instrumentation or hooking framework detected"
	msgDeveloper       = "Developer options or USB debugging are enabled"
	msgDeveloperStrict = "Developer options must be disabled on this terminal"
	msgCheckError      = "Security check could not be completed"
)

// verdict accumulates warnings and failures, keeping the first message per
// kind.
type verdict struct {
	warnings []SecurityWarning
	failures []SecurityFailure
}

func (v *verdict) warn(k Kind, msg string) {
	for _, w := range v.warnings {
		if w.Kind == k {
			return
		}
	}
	v.warnings = append(v.warnings, SecurityWarning{Kind: k, Message: msg})
}

func (v *verdict) fail(k Kind, msg string) {
	for _, f := range v.failures {
		if f.Kind == k {
			return
		}
	}
	v.failures = append(v.failures, SecurityFailure{Kind: k, Message: msg})
}

// Evaluate applies the terminal policy to a check result. It is a pure
// function of its inputs.
//
// In development builds root and emulator detections are downgraded to
// warnings so the app can be exercised on test devices and emulators.
func Evaluate(check threat.CheckResult, mode buildmode.Mode, strict bool) InitializationResult {
	var v verdict
	dev := mode.IsDevelopment()

	if check.IsRooted {
		if dev {
			v.warn(KindDeviceRooted, msgRooted+" (allowed in development build)")
		} else {
			v.fail(KindDeviceRooted, msgRooted)
		}
	}
	if check.IsEmulator {
		if dev {
			v.warn(KindEmulatorDetected, msgEmulator+" (allowed in development build)")
		} else {
			v.fail(KindEmulatorDetected, msgEmulator)
		}
	}
	if check.HasInstrumentation {
		v.fail(KindInstrumentationDetected, msgInstrumentation)
	}
	if check.IsDebuggable {
		v.warn(KindDeveloperOptionsEnabled, msgDeveloper)
		if strict {
			v.fail(KindDeveloperOptionsEnabled, msgDeveloperStrict)
		}
	}

	res := InitializationResult{
		Status:      StatusSuccess,
		Warnings:    v.warnings,
		Failures:    v.failures,
		Check:       check,
		BuildMode:   mode,
		Strict:      strict,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(v.failures) > 0 {
		res.Status = StatusFailed
	}
	return res
}

// checkError is the fail-closed verdict for an orchestration that could
// not complete.
func checkError(mode buildmode.Mode, strict bool, detail string) InitializationResult {
	msg := msgCheckError
	if detail != "" {
		msg += ": " + detail
	}
	return InitializationResult{
		Status:      StatusFailed,
		Failures:    []SecurityFailure{{Kind: KindSecurityCheckError, Message: msg}},
		BuildMode:   mode,
		Strict:      strict,
		EvaluatedAt: time.Now().UTC(),
	}
}
