package threat

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"testing"
	"time"
)

// saveAndRestore saves all function variables and returns a restore function.
func saveAndRestore(t *testing.T) func() {
	t.Helper()
	origStat := osStat
	origReadFile := osReadFile
	origGetenv := osGetenv
	origCommand := execCommand
	return func() {
		osStat = origStat
		osReadFile = origReadFile
		osGetenv = origGetenv
		execCommand = origCommand
	}
}

// fakeFS installs an in-memory filesystem for probes. Paths not in files
// do not exist.
func fakeFS(t *testing.T, files map[string]string, env map[string]string) {
	t.Helper()
	t.Cleanup(saveAndRestore(t))

	osStat = func(name string) (os.FileInfo, error) {
		if _, ok := files[name]; ok {
			return fakeInfo{name: name}, nil
		}
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	osReadFile = func(name string) ([]byte, error) {
		if data, ok := files[name]; ok {
			return []byte(data), nil
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	osGetenv = func(key string) string { return env[key] }
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "false")
	}
}

type fakeInfo struct{ name string }

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() fs.FileMode  { return 0755 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

// cleanMounts is a stock /proc/mounts with /system read-only.
const cleanMounts = `/dev/block/dm-0 / ext4 ro,seclabel,relatime 0 0
/dev/block/dm-1 /system ext4 ro,seclabel,relatime 0 0
/dev/block/dm-2 /data f2fs rw,lazytime,seclabel,nosuid,nodev 0 0
`

// cleanTCP has sockets but none on instrumentation ports.
const cleanTCP = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0
   1: 0100007F:69A2 0100007F:C350 01 00000000:00000000 00:00000000 00000000  1000        0 12346 1 0000000000000000 100 0 0 10 0
`

func cleanFiles() map[string]string {
	return map[string]string{
		"/proc/mounts":  cleanMounts,
		"/proc/net/tcp": cleanTCP,
	}
}

// cleanDevice looks like a stock release handset.
func cleanDevice() StaticDevice {
	return StaticDevice{
		Packages: []string{"com.android.settings", "rw.momo.terminal"},
		Properties: map[string]string{
			"ro.build.fingerprint":    "samsung/a14xx/a14:14/UP1A.231005.007/A145FXXU3BXD1:user/release-keys",
			"ro.product.model":        "SM-A145F",
			"ro.product.manufacturer": "samsung",
			"ro.hardware":             "mt6769",
			"ro.product.name":         "a14xx",
			"ro.product.device":       "a14",
			"ro.product.brand":        "samsung",
			"ro.build.tags":           "release-keys",
			"ro.debuggable":           "0",
			"ro.secure":               "1",
		},
		Settings: map[string]string{},
		Operator: "MTN RW",
		Modules:  []string{"/system/lib64/libc.so", "/apex/com.android.art/lib64/libart.so"},
	}
}
