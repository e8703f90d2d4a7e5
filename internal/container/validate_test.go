package container

import (
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestValidateFlagsMissingProcessAsFatal(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{}}
	result := Validate(b)
	if result.OK() {
		t.Fatal("expected validation to fail without a process section")
	}
}

func TestValidateFlagsEmptyArgsAsFatal(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{
		Process: &specs.Process{Args: nil},
		Root:    &specs.Root{Path: "rootfs"},
	}}
	result := Validate(b)
	if result.OK() {
		t.Fatal("expected validation to fail with empty process args")
	}
}

func TestValidateWarnsOnMissingLinuxSection(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{
		Process: &specs.Process{Args: []string{"/bin/true"}},
		Root:    &specs.Root{Path: "rootfs"},
	}}
	result := Validate(b)
	if !result.OK() {
		t.Fatalf("expected no fatal errors, got %v", result.Fatal)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a warning for missing linux section")
	}
}

func TestValidateFlagsDuplicateNamespacesAsFatal(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{
		Process: &specs.Process{Args: []string{"/bin/true"}},
		Root:    &specs.Root{Path: "rootfs"},
		Linux: &specs.Linux{
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.PIDNamespace},
			},
		},
	}}
	result := Validate(b)
	if result.OK() {
		t.Fatal("expected validation to fail on duplicate namespace entries")
	}
}

func TestValidateWarnsOnUIDMappingsWithoutUserNamespace(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{
		Process: &specs.Process{Args: []string{"/bin/true"}},
		Root:    &specs.Root{Path: "rootfs"},
		Linux: &specs.Linux{
			UIDMappings: []specs.LinuxIDMapping{{ContainerID: 0, HostID: 1000, Size: 1}},
		},
	}}
	result := Validate(b)
	if !result.OK() {
		t.Fatalf("expected no fatal errors, got %v", result.Fatal)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "uidMappings present without a user namespace; mappings will be ignored" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected uidMappings warning, got %v", result.Warnings)
	}
}

func TestValidateFlagsEmptyMountDestinationAsFatal(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{
		Process: &specs.Process{Args: []string{"/bin/true"}},
		Root:    &specs.Root{Path: "rootfs"},
		Mounts:  []specs.Mount{{Destination: ""}},
	}}
	result := Validate(b)
	if result.OK() {
		t.Fatal("expected validation to fail on empty mount destination")
	}
}

func TestValidateOrErrorReturnsTaggedErrorOnFatal(t *testing.T) {
	b := &Bundle{Spec: &specs.Spec{}}
	if _, err := ValidateOrError(b); err == nil {
		t.Fatal("expected a tagged error")
	}
}
