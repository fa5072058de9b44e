package version

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.3.0", "v0.3.0"},
		{"v0.3.0", "v0.3.0"},
		{"dev", "vdev"},
		{"v0.3.0-rc.1", "v0.3.0-rc.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			orig := Version
			t.Cleanup(func() { Version = orig })

			Version = tt.in
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
