package sandbox

import "testing"

func TestCompileCarriesRetainedCapabilitiesIntoBoundingSet(t *testing.T) {
	p := New()
	p.RetainCapability("CAP_NET_BIND_SERVICE")

	cfg, err := Compile(p, "test-cgroup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.BoundingCapabilities) != 1 || cfg.BoundingCapabilities[0] != "CAP_NET_BIND_SERVICE" {
		t.Fatalf("expected bounding set to carry the retained capability, got %v", cfg.BoundingCapabilities)
	}
}

func TestCompileRejectsInvalidPolicy(t *testing.T) {
	p := New()
	p.allowedSyscalls["ptrace"] = true
	p.deniedSyscalls["ptrace"] = true

	if _, err := Compile(p, "test-cgroup"); err == nil {
		t.Fatalf("expected Compile to reject an invalid policy")
	}
}

func TestCompileDisablesNetworkNamespaceWhenPolicyDenies(t *testing.T) {
	p := New()
	p.AllowNetwork = false

	cfg, err := Compile(p, "test-cgroup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Namespaces.EnableNet {
		t.Fatalf("expected net namespace disabled when policy denies network")
	}
}
