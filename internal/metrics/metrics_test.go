package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordVerdict(t *testing.T) {
	r := NewRegistry()

	r.RecordVerdict(true, nil)
	r.RecordVerdict(false, []string{"DEVICE_ROOTED", "INSTRUMENTATION_DETECTED"})
	r.RecordVerdict(false, []string{"DEVICE_ROOTED"})

	if got := testutil.ToFloat64(r.VerdictsTotal.WithLabelValues("secure")); got != 1 {
		t.Errorf("secure verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.VerdictsTotal.WithLabelValues("blocked")); got != 2 {
		t.Errorf("blocked verdicts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.PolicyFailuresTotal.WithLabelValues("DEVICE_ROOTED")); got != 2 {
		t.Errorf("DEVICE_ROOTED failures = %v, want 2", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	t.Log("Components run without metrics; a nil registry must not panic")
	var r *Registry
	r.RecordProbePositive("root")
	r.RecordVerdict(false, []string{"x"})
	r.RecordDecryptFailure("tag_mismatch")
	r.RecordIntegrityFailure("retryable")
	r.RecordKeyRotation()
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("nil WriteTextfile = %v", err)
	}
}

func TestConcurrentRecording(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordProbePositive("emulator")
			r.RecordDecryptFailure("key_not_found")
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(r.ProbePositiveTotal.WithLabelValues("emulator")); got != 50 {
		t.Errorf("emulator positives = %v, want 50", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.RecordIntegrityFailure("nonce")
	r.RecordKeyRotation()

	path := filepath.Join(t.TempDir(), "termguard.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`termguard_integrity_failures_total{category="nonce"} 1`,
		"termguard_key_rotations_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}
