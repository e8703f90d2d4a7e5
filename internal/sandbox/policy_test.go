package sandbox

import "testing"

func TestAllowSyscallRemovesFromDeniedSet(t *testing.T) {
	p := New()
	p.DenySyscall("ptrace")
	p.AllowSyscall("ptrace")

	if !contains(p.AllowedSyscalls(), "ptrace") {
		t.Fatalf("expected ptrace in allowed set")
	}
	if contains(p.DeniedSyscalls(), "ptrace") {
		t.Fatalf("expected ptrace removed from denied set")
	}
}

func TestDenySyscallRemovesFromAllowedSet(t *testing.T) {
	p := New()
	p.AllowSyscall("mount")
	p.DenySyscall("mount")

	if contains(p.AllowedSyscalls(), "mount") {
		t.Fatalf("expected mount removed from allowed set")
	}
	if !contains(p.DeniedSyscalls(), "mount") {
		t.Fatalf("expected mount in denied set")
	}
}

func TestValidateRejectsManuallyConstructedOverlap(t *testing.T) {
	p := New()
	p.allowedSyscalls["read"] = true
	p.deniedSyscalls["read"] = true

	if err := p.Validate(); err == nil {
		t.Fatalf("expected Validate to reject an overlapping allow/deny set")
	}
}

func TestNewPolicyIsMaximallyRestrictive(t *testing.T) {
	p := New()
	if p.AllowFS || p.AllowNetwork || p.AllowExec || p.AllowEnv {
		t.Fatalf("expected every feature toggle false by default")
	}
	if p.CanRead("/etc/passwd") || p.CanWrite("/etc/passwd") || p.CanExec("/bin/sh") {
		t.Fatalf("expected no paths allowed by default")
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
