package sandbox

import (
	"github.com/nexuscore/core/internal/isolation"
)

// Compile lowers a Policy into an isolation.StackConfig, the shape
// isolation.NewStack consumes (spec.md §4.10). Its caller in this module is
// container.SandboxPolicyFor; builtin command execution does not use it.
// cgroupName scopes the resulting cgroup.
func Compile(p *Policy, cgroupName string) (isolation.StackConfig, error) {
	if err := p.Validate(); err != nil {
		return isolation.StackConfig{}, err
	}

	cfg := isolation.DefaultStackConfig(cgroupName)
	cfg.BoundingCapabilities = p.RetainedCapabilities()
	cfg.ApplySeccomp = p.Seccomp

	profile := isolation.SeccompProfile{
		DefaultAction: isolation.SeccompAction{Kind: isolation.ActionErrno, Errno: 1},
	}
	for _, name := range p.AllowedSyscalls() {
		profile.Syscalls = append(profile.Syscalls, isolation.SeccompSyscall{
			Name:   name,
			Action: isolation.SeccompAction{Kind: isolation.ActionAllow},
		})
	}
	for _, name := range p.DeniedSyscalls() {
		profile.Syscalls = append(profile.Syscalls, isolation.SeccompSyscall{
			Name:   name,
			Action: isolation.SeccompAction{Kind: isolation.ActionErrno, Errno: 1},
		})
	}
	cfg.Seccomp = profile

	ns := cfg.Namespaces
	ns.EnableNet = p.AllowNetwork
	cfg.Namespaces = ns

	return cfg, nil
}
