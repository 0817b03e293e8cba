package version

import (
	"sort"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Loading tests
// ---------------------------------------------------------------------------

func TestLoadCurrentSpec(t *testing.T) {
	spec, err := LoadCurrentSpec()
	if err != nil {
		t.Fatalf("LoadCurrentSpec() error: %v", err)
	}
	if spec.Version != "1.0" {
		t.Errorf("Version = %q, want %q", spec.Version, "1.0")
	}
	if spec.Description == "" {
		t.Error("Description is empty")
	}
}

func TestLoadSpec_Valid(t *testing.T) {
	spec, err := LoadSpec("1.0")
	if err != nil {
		t.Fatalf("LoadSpec(1.0) error: %v", err)
	}
	if spec.Version != "1.0" {
		t.Errorf("Version = %q, want %q", spec.Version, "1.0")
	}
}

func TestLoadSpec_NotFound(t *testing.T) {
	_, err := LoadSpec("99.99")
	if err == nil {
		t.Fatal("LoadSpec(99.99) should return error")
	}
}

func TestAvailableSpecs(t *testing.T) {
	versions, err := AvailableSpecs()
	if err != nil {
		t.Fatalf("AvailableSpecs() error: %v", err)
	}
	found := false
	for _, v := range versions {
		if v == "1.0" {
			found = true
		}
	}
	if !found {
		t.Errorf("AvailableSpecs() = %v, want to contain %q", versions, "1.0")
	}
}

// ---------------------------------------------------------------------------
// Content tests -- verify the 1.0 manifest
// ---------------------------------------------------------------------------

func TestSpec10_Stacks(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	want := []string{"tcp", "tcp+tls", "udp"}
	if len(spec.Stacks) != len(want) {
		t.Fatalf("spec 1.0 has %d stacks, want %d", len(spec.Stacks), len(want))
	}
	for _, name := range want {
		if _, ok := spec.StackByName(name); !ok {
			t.Errorf("stack %q missing from spec 1.0", name)
		}
	}
}

func TestSpec10_TLSStackIsSecureStream(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	stack, ok := spec.StackByName("tcp+tls")
	if !ok {
		t.Fatal("tcp+tls stack missing")
	}
	if !stack.Secure {
		t.Error("tcp+tls should be secure")
	}
	if stack.Service != "stream" {
		t.Errorf("tcp+tls service = %q, want %q", stack.Service, "stream")
	}
}

func TestSpec10_UDPStackIsDatagram(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	stack, ok := spec.StackByName("udp")
	if !ok {
		t.Fatal("udp stack missing")
	}
	if stack.Secure {
		t.Error("udp should not be secure")
	}
	if stack.Service != "datagram" {
		t.Errorf("udp service = %q, want %q", stack.Service, "datagram")
	}
}

func TestSpec10_MandatoryOperations(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	want := []string{"abort", "close", "initiate", "listen", "receive", "send"}
	got := spec.MandatoryOperations()
	if len(got) != len(want) {
		t.Fatalf("MandatoryOperations() = %v, want %v", got, want)
	}
	for i, op := range want {
		if got[i] != op {
			t.Errorf("MandatoryOperations()[%d] = %q, want %q", i, got[i], op)
		}
	}
}

func TestSpec10_OptionalOperations(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	want := map[string]bool{"rendezvous": true, "clone": true}
	if len(spec.Operations.Optional) != len(want) {
		t.Fatalf("optional operations = %v, want rendezvous and clone", spec.Operations.Optional)
	}
	for _, op := range spec.Operations.Optional {
		if !want[op] {
			t.Errorf("unexpected optional operation %q", op)
		}
	}
}

func TestSpec10_SelectionProperties(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	if len(spec.Properties) != 13 {
		t.Fatalf("spec 1.0 lists %d properties, want 13", len(spec.Properties))
	}
	for _, name := range []string{"reliability", "preserveMsgBoundaries", "congestionControl"} {
		found := false
		for _, p := range spec.Properties {
			if p == name {
				found = true
			}
		}
		if !found {
			t.Errorf("property %q missing from spec 1.0", name)
		}
	}
}

func TestSpec10_MandatoryOperationsSorted(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")
	ops := spec.MandatoryOperations()
	if !sort.StringsAreSorted(ops) {
		t.Errorf("MandatoryOperations() not sorted: %v", ops)
	}
}

// ---------------------------------------------------------------------------
// Validation tests
// ---------------------------------------------------------------------------

func fullCapabilities() EngineCapabilities {
	return EngineCapabilities{
		SpecVersion: "1.0",
		Stacks:      []string{"tcp", "tcp+tls", "udp"},
		Operations:  []string{"initiate", "listen", "send", "receive", "close", "abort"},
		Properties: []string{
			"reliability", "preserveMsgBoundaries", "perMsgReliability",
			"preserveOrder", "zeroRttMsg", "multistreaming",
			"fullChecksumSend", "fullChecksumRecv", "congestionControl",
			"keepAlive", "useTemporaryLocalAddress", "softErrorNotify",
			"activeReadBeforeSend",
		},
	}
}

func TestValidateEngine_AllMandatoryPresent(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	result := ValidateEngine(spec, fullCapabilities())
	if !result.Valid {
		t.Errorf("expected valid, got errors: %v", result.Errors)
	}
	// rendezvous and clone are optional and absent.
	if len(result.Warnings) != 2 {
		t.Errorf("expected 2 warnings for absent optional operations, got: %v", result.Warnings)
	}
}

func TestValidateEngine_MissingStack(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	caps := fullCapabilities()
	caps.Stacks = []string{"tcp", "udp"}

	result := ValidateEngine(spec, caps)
	if result.Valid {
		t.Error("expected invalid when tcp+tls is missing")
	}
	assertContainsSubstring(t, result.Errors, "tcp+tls")
}

func TestValidateEngine_MissingMandatoryOperation(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	caps := fullCapabilities()
	caps.Operations = []string{"initiate", "listen", "send", "receive", "close"}

	result := ValidateEngine(spec, caps)
	if result.Valid {
		t.Error("expected invalid when abort is missing")
	}
	assertContainsSubstring(t, result.Errors, "abort")
}

func TestValidateEngine_MissingProperty(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	caps := fullCapabilities()
	caps.Properties = caps.Properties[:len(caps.Properties)-1]

	result := ValidateEngine(spec, caps)
	if result.Valid {
		t.Error("expected invalid when activeReadBeforeSend is missing")
	}
	assertContainsSubstring(t, result.Errors, "activeReadBeforeSend")
}

func TestValidateEngine_MinorVersionSkew(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	caps := fullCapabilities()
	caps.SpecVersion = "1.1"

	result := ValidateEngine(spec, caps)
	// Same major version is a warning, not an error.
	if !result.Valid {
		t.Errorf("minor skew should be warning, not error; errors: %v", result.Errors)
	}
	assertContainsSubstring(t, result.Warnings, "minor")
}

func TestValidateEngine_MajorVersionMismatch(t *testing.T) {
	spec := mustLoadSpec(t, "1.0")

	caps := fullCapabilities()
	caps.SpecVersion = "2.0"

	result := ValidateEngine(spec, caps)
	if result.Valid {
		t.Error("expected invalid for major version mismatch")
	}
	assertContainsSubstring(t, result.Errors, "mismatch")
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func mustLoadSpec(t *testing.T, ver string) *SpecManifest {
	t.Helper()
	spec, err := LoadSpec(ver)
	if err != nil {
		t.Fatalf("LoadSpec(%q) error: %v", ver, err)
	}
	return spec
}

func assertContainsSubstring(t *testing.T, items []string, substr string) {
	t.Helper()
	for _, s := range items {
		if strings.Contains(s, substr) {
			return
		}
	}
	t.Errorf("expected an item containing %q in %v", substr, items)
}
