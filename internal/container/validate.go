package container

import (
	"fmt"

	"github.com/nexuscore/core/internal/errtag"
)

// ValidationResult separates non-fatal warnings from fatal errors, per
// spec.md §6: "Validation produces a list of warnings; fatal errors prevent
// start."
type ValidationResult struct {
	Warnings []string
	Fatal    []string
}

// OK reports whether the bundle is safe to start (no fatal errors; warnings
// are advisory only).
func (r ValidationResult) OK() bool { return len(r.Fatal) == 0 }

// Validate checks a parsed bundle against the runtime invariants spec.md §6
// and §4.8 require, splitting problems into warnings (degraded but
// startable) and fatal errors (must not start).
func Validate(b *Bundle) ValidationResult {
	var result ValidationResult

	if b.Spec.Process == nil {
		result.Fatal = append(result.Fatal, "spec has no process section")
		return result
	}
	if len(b.Spec.Process.Args) == 0 {
		result.Fatal = append(result.Fatal, "process.args is empty")
	}

	if b.Spec.Root == nil {
		result.Fatal = append(result.Fatal, "spec has no root section")
	}

	if b.Spec.Linux != nil {
		seenNS := map[string]bool{}
		for _, ns := range b.Spec.Linux.Namespaces {
			key := string(ns.Type)
			if seenNS[key] {
				result.Fatal = append(result.Fatal, fmt.Sprintf("duplicate namespace entry: %s", key))
			}
			seenNS[key] = true
		}
		if len(b.Spec.Linux.UIDMappings) > 0 && !seenNS["user"] {
			result.Warnings = append(result.Warnings, "uidMappings present without a user namespace; mappings will be ignored")
		}
		if len(b.Spec.Linux.GIDMappings) > 0 && !seenNS["user"] {
			result.Warnings = append(result.Warnings, "gidMappings present without a user namespace; mappings will be ignored")
		}
		if b.Spec.Linux.Seccomp == nil {
			result.Warnings = append(result.Warnings, "no seccomp profile in spec; the daemon default profile will be applied instead")
		}
	} else {
		result.Warnings = append(result.Warnings, "spec has no linux section; namespaces/cgroups/seccomp fall back to daemon defaults")
	}

	for _, m := range b.Spec.Mounts {
		if m.Destination == "" {
			result.Fatal = append(result.Fatal, "mount entry has an empty destination")
		}
	}

	return result
}

// ValidateOrError converts a ValidationResult with fatal entries into a
// tagged error, for callers that want the fail-fast shape the lifecycle
// start path uses.
func ValidateOrError(b *Bundle) (ValidationResult, error) {
	result := Validate(b)
	if !result.OK() {
		return result, errtag.Newf(errtag.Configuration, errtag.High, "bundle validation failed: %v", result.Fatal)
	}
	return result, nil
}
