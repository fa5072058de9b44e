package threat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultSignatures(t *testing.T) {
	s := DefaultSignatures()
	require.NoError(t, s.Validate())

	assert.GreaterOrEqual(t, len(s.Root.BinaryPaths), 15)
	assert.GreaterOrEqual(t, len(s.Root.ManagementPackages), 18)
	assert.NotEmpty(t, s.Root.CloakingPackages)
	assert.Contains(t, s.Instrumentation.FridaPorts, 27042)
	assert.Contains(t, s.Emulator.OperatorMarkers, "android")
}

func withVersion(t *testing.T, version string) *Signatures {
	t.Helper()
	data, err := yaml.Marshal(DefaultSignatures())
	require.NoError(t, err)
	s, err := ParseSignatures(data)
	require.NoError(t, err)
	s.Version = version
	return s
}

func TestParseSignatures_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"not yaml", "version: [", "parse signatures"},
		{"bad version", "version: 1.0.0\n", "not semver"},
		{"empty sections", "version: v9.0.0\n", "must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignatures([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_PropertyMatches(t *testing.T) {
	s := withVersion(t, "v2.0.0")
	s.Root.DangerousProps = append(s.Root.DangerousProps, PropertyMatch{Name: "ro.x", Value: "1", Contains: "1"})
	assert.ErrorContains(t, s.Validate(), "exactly one")

	s = withVersion(t, "v2.0.0")
	s.Instrumentation.FridaPorts = []int{70000}
	assert.ErrorContains(t, s.Validate(), "out of range")
}

func TestLoadSignatures(t *testing.T) {
	data, err := yaml.Marshal(withVersion(t, "v9.1.0"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sig.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))

	s, err := LoadSignatures(path)
	require.NoError(t, err)
	assert.Equal(t, "v9.1.0", s.Version)

	_, err = LoadSignatures(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestUpdateSignatures(t *testing.T) {
	e := NewEngine(StaticDevice{})
	current := e.Signatures().Version

	t.Log("An older table must be refused")
	err := e.UpdateSignatures(withVersion(t, "v0.0.1"))
	assert.ErrorIs(t, err, ErrStaleSignatures)
	assert.Equal(t, current, e.Signatures().Version)

	t.Log("The same version may be re-applied")
	require.NoError(t, e.UpdateSignatures(withVersion(t, current)))

	newer := withVersion(t, "v99.0.0")
	newer.Root.BinaryPaths = []string{"/opt/custom/su"}
	require.NoError(t, e.UpdateSignatures(newer))
	assert.Equal(t, "v99.0.0", e.Signatures().Version)

	t.Log("An invalid table is refused regardless of version")
	broken := withVersion(t, "v100.0.0")
	broken.Root.BinaryPaths = nil
	assert.Error(t, e.UpdateSignatures(broken))
}

func TestUpdateSignatures_AffectsDetection(t *testing.T) {
	fakeFS(t, map[string]string{"/opt/custom/su": ""}, nil)
	e := NewEngine(cleanDevice())

	root, _ := e.DetectRoot(t.Context())
	assert.False(t, root)

	newer := withVersion(t, "v99.0.0")
	newer.Root.BinaryPaths = append(newer.Root.BinaryPaths, "/opt/custom/su")
	require.NoError(t, e.UpdateSignatures(newer))

	root, reasons := e.DetectRoot(t.Context())
	assert.True(t, root)
	assert.True(t, strings.Contains(reasons[0], "/opt/custom/su"))
}
