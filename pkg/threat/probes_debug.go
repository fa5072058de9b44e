package threat

import "context"

var debugProbes = []probe{
	{CategoryDebug, "adb_enabled", probeSettingEnabled("adb_enabled", "USB debugging enabled")},
	{CategoryDebug, "developer_options", probeSettingEnabled("development_settings_enabled", "developer options enabled")},
}

func probeSettingEnabled(name, reason string) func(context.Context, *probeEnv) ProbeResult {
	return func(ctx context.Context, env *probeEnv) ProbeResult {
		v, err := env.dev.Setting(ctx, "global", name)
		if err != nil {
			return failed(err)
		}
		if v == "1" {
			return detected(reason)
		}
		return clean()
	}
}
