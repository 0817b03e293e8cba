package version

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed specs/*.yaml
var specFS embed.FS

// SpecManifest describes what an engine implementing a given
// specification version must provide: the protocol stacks it can race,
// the operations it supports, and the selection properties it
// understands.
type SpecManifest struct {
	Version     string        `yaml:"version"`
	Description string        `yaml:"description"`
	Stacks      []StackSpec   `yaml:"stacks"`
	Operations  OperationSpec `yaml:"operations"`
	Properties  []string      `yaml:"properties"`
}

// StackSpec names one protocol stack the manifest requires.
type StackSpec struct {
	Name    string `yaml:"name"`
	Service string `yaml:"service"`
	Secure  bool   `yaml:"secure"`
}

// OperationSpec lists the mandatory and optional engine operations.
type OperationSpec struct {
	Mandatory []string `yaml:"mandatory"`
	Optional  []string `yaml:"optional"`
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*SpecManifest)
)

// LoadSpec loads a spec manifest by version string (e.g. "1.0").
func LoadSpec(ver string) (*SpecManifest, error) {
	cacheMu.RLock()
	if s, ok := cache[ver]; ok {
		cacheMu.RUnlock()
		return s, nil
	}
	cacheMu.RUnlock()

	data, err := specFS.ReadFile("specs/" + ver + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("spec version %q not found: %w", ver, err)
	}

	var m SpecManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing spec %q: %w", ver, err)
	}

	cacheMu.Lock()
	cache[ver] = &m
	cacheMu.Unlock()

	return &m, nil
}

// LoadCurrentSpec loads the manifest for the current specification version.
func LoadCurrentSpec() (*SpecManifest, error) {
	return LoadSpec(Current)
}

// AvailableSpecs returns the version strings of all embedded spec manifests.
func AvailableSpecs() ([]string, error) {
	entries, err := specFS.ReadDir("specs")
	if err != nil {
		return nil, fmt.Errorf("reading specs directory: %w", err)
	}

	var versions []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") {
			versions = append(versions, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// MandatoryOperations returns the manifest's mandatory operations, sorted.
func (s *SpecManifest) MandatoryOperations() []string {
	out := append([]string(nil), s.Operations.Mandatory...)
	sort.Strings(out)
	return out
}

// StackByName looks up a stack requirement by name.
func (s *SpecManifest) StackByName(name string) (*StackSpec, bool) {
	for i := range s.Stacks {
		if s.Stacks[i].Name == name {
			return &s.Stacks[i], true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// EngineCapabilities describes what an engine build actually provides.
type EngineCapabilities struct {
	SpecVersion string
	Stacks      []string
	Operations  []string
	Properties  []string
}

// ValidationResult holds the outcome of validating an engine against a spec.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateEngine checks whether an engine's capabilities satisfy a spec
// manifest. Missing mandatory operations, stacks or properties are
// errors; missing optional operations are warnings.
func ValidateEngine(spec *SpecManifest, caps EngineCapabilities) ValidationResult {
	var result ValidationResult

	if caps.SpecVersion != "" && caps.SpecVersion != spec.Version {
		specVer, err1 := Parse(spec.Version)
		capsVer, err2 := Parse(caps.SpecVersion)
		if err1 != nil || err2 != nil || !specVer.Compatible(capsVer) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("spec version mismatch: engine implements %s, manifest is %s",
					caps.SpecVersion, spec.Version))
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("spec minor version differs: engine implements %s, manifest is %s",
					caps.SpecVersion, spec.Version))
		}
	}

	stackSet := makeStringSet(caps.Stacks)
	for _, stack := range spec.Stacks {
		if !stackSet[stack.Name] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("required stack %s missing", stack.Name))
		}
	}

	opSet := makeStringSet(caps.Operations)
	for _, op := range spec.Operations.Mandatory {
		if !opSet[op] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("mandatory operation %s missing", op))
		}
	}
	for _, op := range spec.Operations.Optional {
		if !opSet[op] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("optional operation %s not provided", op))
		}
	}

	propSet := makeStringSet(caps.Properties)
	for _, prop := range spec.Properties {
		if !propSet[prop] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("selection property %s missing", prop))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func makeStringSet(values []string) map[string]bool {
	s := make(map[string]bool, len(values))
	for _, v := range values {
		s[v] = true
	}
	return s
}
