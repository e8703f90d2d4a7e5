package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nexuscore/core/internal/container"
)

func writeMinimalBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "rootfs"), 0o755); err != nil {
		t.Fatalf("mkdir rootfs: %v", err)
	}
	spec := &specs.Spec{
		Process: &specs.Process{Args: []string{"/bin/true"}, Cwd: "/"},
		Root:    &specs.Root{Path: "rootfs"},
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, container.ConfigFileName), raw, 0o644); err != nil {
		t.Fatalf("write config.json: %v", err)
	}
	return dir
}

// TestContainerLifecycleBasicWorkflow exercises create -> start -> stats ->
// stop -> remove against a real containerd socket, skipping when one isn't
// reachable, the way the teacher's containerd integration test does.
func TestContainerLifecycleBasicWorkflow(t *testing.T) {
	rt, err := container.NewContainerdRuntime("")
	if err != nil {
		t.Skipf("containerd not available: %v", err)
	}
	defer rt.Close()

	dataRoot := t.TempDir()
	lc, err := container.NewLifecycle(dataRoot, rt)
	if err != nil {
		t.Fatalf("NewLifecycle: %v", err)
	}

	bundlePath := writeMinimalBundle(t)

	t.Log("Step 1: creating container from bundle...")
	c, err := lc.Create(bundlePath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Logf("created container: %s", c.ID)

	defer func() {
		if err := lc.Remove(c.ID, true, true); err != nil {
			t.Logf("warning: Remove failed: %v", err)
		}
	}()

	t.Log("Step 2: starting container...")
	if err := lc.Start(c.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	got, ok := lc.Get(c.ID)
	if !ok {
		t.Fatal("expected container to be present after start")
	}
	if got.State != container.Running {
		t.Errorf("expected state %q, got %q", container.Running, got.State)
	}

	t.Log("Step 3: stopping container...")
	if err := lc.Stop(c.ID, 5*time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, ok = lc.Get(c.ID)
	if !ok {
		t.Fatal("expected container to still be present after stop")
	}
	if got.State != container.Stopped {
		t.Errorf("expected state %q, got %q", container.Stopped, got.State)
	}
}
