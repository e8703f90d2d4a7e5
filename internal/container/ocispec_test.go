package container

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func writeBundle(t *testing.T, spec *specs.Spec) string {
	t.Helper()
	dir := t.TempDir()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), raw, 0o644); err != nil {
		t.Fatalf("write config.json: %v", err)
	}
	return dir
}

func TestLoadBundleParsesProcessAndRoot(t *testing.T) {
	dir := writeBundle(t, &specs.Spec{
		Process: &specs.Process{Args: []string{"/bin/echo", "hi"}, Env: []string{"FOO=bar"}, Cwd: "/"},
		Root:    &specs.Root{Path: "rootfs"},
	})

	b, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}

	args, env, cwd, err := b.Entrypoint()
	if err != nil {
		t.Fatalf("Entrypoint: %v", err)
	}
	if len(args) != 2 || args[0] != "/bin/echo" {
		t.Errorf("unexpected args: %v", args)
	}
	if len(env) != 1 || env[0] != "FOO=bar" {
		t.Errorf("unexpected env: %v", env)
	}
	if cwd != "/" {
		t.Errorf("unexpected cwd: %q", cwd)
	}
}

func TestLoadBundleMissingConfigReturnsNotFoundTagged(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadBundle(dir); err == nil {
		t.Fatal("expected error for missing config.json")
	}
}

func TestEntrypointRejectsEmptyArgs(t *testing.T) {
	dir := writeBundle(t, &specs.Spec{Process: &specs.Process{Args: nil}})
	b, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if _, _, _, err := b.Entrypoint(); err == nil {
		t.Fatal("expected error for empty process args")
	}
}

func TestRootfsPathResolvesRelativeToBundle(t *testing.T) {
	dir := writeBundle(t, &specs.Spec{Root: &specs.Root{Path: "rootfs"}})
	b, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	want := filepath.Join(dir, "rootfs")
	if got := b.RootfsPath(); got != want {
		t.Errorf("RootfsPath() = %q, want %q", got, want)
	}
}

func TestRootfsPathHonorsAbsolutePath(t *testing.T) {
	b := &Bundle{Path: "/bundles/a", Spec: &specs.Spec{Root: &specs.Root{Path: "/var/lib/rootfs"}}}
	if got := b.RootfsPath(); got != "/var/lib/rootfs" {
		t.Errorf("RootfsPath() = %q, want absolute path preserved", got)
	}
}

func TestRootfsPathDefaultsWhenRootMissing(t *testing.T) {
	b := &Bundle{Path: "/bundles/a", Spec: &specs.Spec{}}
	want := filepath.Join("/bundles/a", "rootfs")
	if got := b.RootfsPath(); got != want {
		t.Errorf("RootfsPath() = %q, want %q", got, want)
	}
}
