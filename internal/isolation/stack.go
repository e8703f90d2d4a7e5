package isolation

import (
	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
)

// StackConfig bundles the isolation primitives applied to one container
// launch, per spec.md §4.8's composite application order.
type StackConfig struct {
	Namespaces             NamespaceConfig
	Cgroup                 CgroupConfig
	BoundingCapabilities   []string
	EffectiveCapabilities  []string
	Seccomp                SeccompProfile
	ApplySeccomp           bool
}

// DefaultStackConfig is the secure-by-default composition: minimal bounding
// set, default seccomp profile, every namespace but user.
func DefaultStackConfig(cgroupName string) StackConfig {
	return StackConfig{
		Namespaces:           DefaultNamespaceConfig(),
		Cgroup:               CgroupConfig{Name: cgroupName},
		BoundingCapabilities: DefaultBoundingSet(),
		Seccomp:              DefaultSeccompProfile(),
		ApplySeccomp:         true,
	}
}

// Stack orchestrates namespace, capability, and seccomp setup inside the
// container's process, plus cgroup setup/teardown from the host side. It
// implements spec.md §4.8's composite application order steps 2-4 and 6
// (step 1 is the caller's fork, step 5 is the container package's pivot
// root/mount, step 7 is the caller's exec).
type Stack struct {
	cfg       StackConfig
	cgroupMgr *CgroupManager
	nsMgr     *NamespaceManager
	capMgr    *CapabilityManager
	secMgr    *SeccompManager
}

// NewStack prepares a Stack for cfg, detecting the host's cgroup hierarchy
// up front so a missing cgroupfs fails before any namespace is created.
func NewStack(cfg StackConfig) (*Stack, error) {
	cgroupMgr, err := NewCgroupManager(cfg.Cgroup)
	if err != nil {
		return nil, err
	}
	return &Stack{
		cfg:       cfg,
		cgroupMgr: cgroupMgr,
		nsMgr:     NewNamespaceManager(cfg.Namespaces),
		capMgr:    NewCapabilityManager(),
		secMgr:    NewSeccompManager(),
	}, nil
}

// ApplyToSelf runs steps 2, 3, 4, and 6 in the calling process (must run in
// the child, after the create-and-pause fork and before exec). It stops at
// the first failing step and returns that step's error as is; steps already
// applied are not undone, and a cgroup made by SetupCgroup stays until
// Teardown is called.
func (s *Stack) ApplyToSelf() error {
	logger := corelog.WithComponent("isolation.stack")

	if err := s.capMgr.SetNoNewPrivileges(); err != nil {
		return err
	}
	if err := s.capMgr.DropBoundingExcept(s.cfg.BoundingCapabilities); err != nil {
		return err
	}
	if len(s.cfg.EffectiveCapabilities) > 0 {
		if err := s.capMgr.AddToEffectivePermittedInheritable(s.cfg.EffectiveCapabilities); err != nil {
			return err
		}
	}
	if err := s.nsMgr.Setup(); err != nil {
		return err
	}
	if s.cfg.ApplySeccomp {
		if err := s.secMgr.Apply(s.cfg.Seccomp); err != nil {
			return err
		}
	}

	logger.Info().Msg("isolation stack applied")
	return nil
}

// SetupCgroup creates the cgroup and adds pid to it; called from the host
// side once the child's pid is known (between fork and resume).
func (s *Stack) SetupCgroup(pid int) error {
	return s.cgroupMgr.Setup(pid)
}

// Stats reads the underlying cgroup's statistics.
func (s *Stack) Stats() (CgroupStats, error) {
	return s.cgroupMgr.Stats()
}

// Teardown removes the cgroup. Namespaces need no explicit teardown: they
// are released when the process that created them exits.
func (s *Stack) Teardown() error {
	if err := s.cgroupMgr.Teardown(); err != nil {
		return errtag.New(errtag.Cgroup, errtag.Low, err)
	}
	return nil
}
