// Package sandbox compiles and validates a sandbox policy: allowed/denied
// path and syscall sets plus a handful of coarse feature toggles, compiled
// per container by container.SandboxPolicyFor (spec.md §4.10); builtin
// command execution does not apply it.
package sandbox

import (
	"sort"
	"sync"

	"github.com/nexuscore/core/internal/errtag"
)

// Policy is spec.md §2's sandbox-policy data: "sets of allowed read paths,
// allowed write paths, allowed exec paths, allowed syscalls, denied
// syscalls (disjoint), retained capabilities, booleans for fs access/
// network/process-exec/env-access, and a seccomp/no-new-privileges flag."
type Policy struct {
	mu sync.RWMutex

	allowedReadPaths  map[string]bool
	allowedWritePaths map[string]bool
	allowedExecPaths  map[string]bool
	allowedSyscalls   map[string]bool
	deniedSyscalls    map[string]bool
	retainedCaps      map[string]bool

	AllowFS      bool
	AllowNetwork bool
	AllowExec    bool
	AllowEnv     bool
	Seccomp      bool
	NoNewPrivs   bool
}

// New returns an empty, maximally restrictive policy: every boolean false,
// every set empty.
func New() *Policy {
	return &Policy{
		allowedReadPaths:  map[string]bool{},
		allowedWritePaths: map[string]bool{},
		allowedExecPaths:  map[string]bool{},
		allowedSyscalls:   map[string]bool{},
		deniedSyscalls:    map[string]bool{},
		retainedCaps:      map[string]bool{},
	}
}

// AllowReadPath adds path to the allowed-read set.
func (p *Policy) AllowReadPath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedReadPaths[path] = true
}

// AllowWritePath adds path to the allowed-write set.
func (p *Policy) AllowWritePath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedWritePaths[path] = true
}

// AllowExecPath adds path to the allowed-exec set.
func (p *Policy) AllowExecPath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedExecPaths[path] = true
}

// CanRead reports whether path is in the allowed-read set.
func (p *Policy) CanRead(path string) bool { return p.has(p.allowedReadPaths, path) }

// CanWrite reports whether path is in the allowed-write set.
func (p *Policy) CanWrite(path string) bool { return p.has(p.allowedWritePaths, path) }

// CanExec reports whether path is in the allowed-exec set.
func (p *Policy) CanExec(path string) bool { return p.has(p.allowedExecPaths, path) }

func (p *Policy) has(set map[string]bool, key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return set[key]
}

// AllowSyscall adds name to the allowed set, removing it from the denied set
// (spec.md §2: "adding to one set removes from the other").
func (p *Policy) AllowSyscall(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedSyscalls[name] = true
	delete(p.deniedSyscalls, name)
}

// DenySyscall adds name to the denied set, removing it from the allowed set.
func (p *Policy) DenySyscall(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deniedSyscalls[name] = true
	delete(p.allowedSyscalls, name)
}

// AllowedSyscalls returns a sorted snapshot of the allowed-syscall set.
func (p *Policy) AllowedSyscalls() []string { return p.sortedKeys(p.allowedSyscalls) }

// DeniedSyscalls returns a sorted snapshot of the denied-syscall set.
func (p *Policy) DeniedSyscalls() []string { return p.sortedKeys(p.deniedSyscalls) }

func (p *Policy) sortedKeys(set map[string]bool) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RetainCapability keeps cap in the bounding set a container launched under
// this policy is allowed to hold.
func (p *Policy) RetainCapability(cap string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retainedCaps[cap] = true
}

// RetainedCapabilities returns a sorted snapshot of retained capabilities.
func (p *Policy) RetainedCapabilities() []string { return p.sortedKeys(p.retainedCaps) }

// Validate enforces spec.md §8 invariant 8: "allowed_syscalls ∩
// denied_syscalls = ∅" after any sequence of mutations. Since
// AllowSyscall/DenySyscall already maintain this disjointness on every
// write, Validate exists as a defense-in-depth check for policies built by
// means other than this type's own mutators (e.g. deserialized from an OCI
// bundle's security extensions).
func (p *Policy) Validate() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name := range p.allowedSyscalls {
		if p.deniedSyscalls[name] {
			return errtag.Newf(errtag.Configuration, errtag.High, "syscall %q is both allowed and denied", name)
		}
	}
	return nil
}
