package threat

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var embeddedSignatures []byte

// PropertyMatch matches a system property either exactly (Value) or by
// substring (Contains). Exactly one of the two is set.
type PropertyMatch struct {
	Name     string `yaml:"name"`
	Value    string `yaml:"value,omitempty"`
	Contains string `yaml:"contains,omitempty"`
}

// Signatures is the data every probe reads.
type Signatures struct {
	Version string `yaml:"version"`

	Root struct {
		BinaryPaths        []string        `yaml:"binary_paths"`
		ManagementPackages []string        `yaml:"management_packages"`
		CloakingPackages   []string        `yaml:"cloaking_packages"`
		DangerousProps     []PropertyMatch `yaml:"dangerous_props"`
		ReadOnlyMounts     []string        `yaml:"read_only_mounts"`
	} `yaml:"root"`

	Emulator struct {
		// BuildMarkers maps a build property to lowercase substrings that
		// only appear on emulator images.
		BuildMarkers    map[string][]string `yaml:"build_markers"`
		SuspiciousProps []PropertyMatch     `yaml:"suspicious_props"`
		Files           []string            `yaml:"files"`
		OperatorMarkers []string            `yaml:"operator_markers"`
	} `yaml:"emulator"`

	Instrumentation struct {
		HookingModules  []string `yaml:"hooking_modules"`
		HookingPackages []string `yaml:"hooking_packages"`
		FridaPaths      []string `yaml:"frida_paths"`
		FridaLibraries  []string `yaml:"frida_libraries"`
		FridaPorts      []int    `yaml:"frida_ports"`
		PatchingPaths   []string `yaml:"patching_paths"`
	} `yaml:"instrumentation"`
}

// ErrStaleSignatures indicates an update older than the running table.
var ErrStaleSignatures = errors.New("signature table is older than the current one")

// DefaultSignatures returns the table compiled into the binary.
func DefaultSignatures() *Signatures {
	s, err := ParseSignatures(embeddedSignatures)
	if err != nil {
		panic(fmt.Sprintf("embedded signatures invalid: %v", err))
	}
	return s
}

// LoadSignatures reads and validates a table from path.
func LoadSignatures(path string) (*Signatures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	return ParseSignatures(data)
}

// ParseSignatures decodes and validates a YAML table.
func ParseSignatures(data []byte) (*Signatures, error) {
	var s Signatures
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the version and that no probe is left without data.
func (s *Signatures) Validate() error {
	if !semver.IsValid(s.Version) {
		return fmt.Errorf("signatures: version %q is not semver (want vMAJOR.MINOR.PATCH)", s.Version)
	}
	required := map[string]int{
		"root.binary_paths":               len(s.Root.BinaryPaths),
		"root.management_packages":        len(s.Root.ManagementPackages),
		"emulator.build_markers":          len(s.Emulator.BuildMarkers),
		"emulator.files":                  len(s.Emulator.Files),
		"instrumentation.hooking_modules": len(s.Instrumentation.HookingModules),
		"instrumentation.frida_paths":     len(s.Instrumentation.FridaPaths),
	}
	for field, n := range required {
		if n == 0 {
			return fmt.Errorf("signatures %s: %s must not be empty", s.Version, field)
		}
	}
	for _, group := range [][]PropertyMatch{s.Root.DangerousProps, s.Emulator.SuspiciousProps} {
		for _, m := range group {
			if m.Name == "" || (m.Value == "") == (m.Contains == "") {
				return fmt.Errorf("signatures %s: property match %q needs a name and exactly one of value or contains", s.Version, m.Name)
			}
		}
	}
	for _, p := range s.Instrumentation.FridaPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("signatures %s: frida port %d out of range", s.Version, p)
		}
	}
	return nil
}

// NewerThan reports whether s is strictly newer than other.
func (s *Signatures) NewerThan(other *Signatures) bool {
	return semver.Compare(s.Version, other.Version) > 0
}
