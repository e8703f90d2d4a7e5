package container

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nexuscore/core/internal/errtag"
)

// ConfigFileName is the OCI runtime bundle's well-known spec file name.
const ConfigFileName = "config.json"

// Bundle is a parsed OCI runtime bundle: the on-disk directory plus its
// decoded config.json (spec.md §6: "a subset: root, process, mounts, hooks,
// linux.namespaces/uidMappings/gidMappings/resources/seccomp/maskedPaths/
// readonlyPaths"). Fields that specs.Spec does not define are not kept.
type Bundle struct {
	Path string
	Spec *specs.Spec
}

// LoadBundle reads and decodes path/config.json. Decoding uses the upstream
// OCI runtime-spec types directly, so unrecognized fields are silently
// dropped by encoding/json: they are neither rejected nor preserved.
func LoadBundle(path string) (*Bundle, error) {
	configPath := filepath.Join(path, ConfigFileName)
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errtag.New(errtag.NotFound, errtag.Medium, fmt.Errorf("read %s: %w", configPath, err))
	}

	var spec specs.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, errtag.New(errtag.Syntax, errtag.High, fmt.Errorf("parse %s: %w", configPath, err))
	}

	return &Bundle{Path: path, Spec: &spec}, nil
}

// Entrypoint resolves the process args, environment, and working directory
// the lifecycle needs to start, per spec.md §4.9's "start: resolves
// entrypoint/args/env/cwd from OCI spec".
func (b *Bundle) Entrypoint() (args []string, env []string, cwd string, err error) {
	if b.Spec.Process == nil {
		return nil, nil, "", errtag.Newf(errtag.Configuration, errtag.High, "bundle %s has no process section", b.Path)
	}
	if len(b.Spec.Process.Args) == 0 {
		return nil, nil, "", errtag.Newf(errtag.Configuration, errtag.High, "bundle %s process has no args", b.Path)
	}
	return b.Spec.Process.Args, b.Spec.Process.Env, b.Spec.Process.Cwd, nil
}

// RootfsPath resolves the bundle's root filesystem path relative to its
// directory, as OCI runtime-spec requires when Root.Path is relative.
func (b *Bundle) RootfsPath() string {
	if b.Spec.Root == nil {
		return filepath.Join(b.Path, "rootfs")
	}
	if filepath.IsAbs(b.Spec.Root.Path) {
		return b.Spec.Root.Path
	}
	return filepath.Join(b.Path, b.Spec.Root.Path)
}
