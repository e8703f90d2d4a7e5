// Package isolation implements the composite isolation stack applied to a
// container's process before exec (spec.md §4.8): namespaces, cgroups,
// capabilities, and seccomp, each in its own file mirroring the split the
// original implementation used (libnexuscontainer's namespace.rs/cgroup.rs/
// security.rs).
package isolation

import (
	"fmt"
	"os"

	"github.com/moby/sys/mountinfo"
	"github.com/moby/sys/user"
	"github.com/moby/sys/userns"
	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
	"golang.org/x/sys/unix"
)

// UserMapping is one line of a uid_map/gid_map: map size container IDs
// starting at containerID to host IDs starting at hostID. It mirrors
// moby/sys/user.IDMap's field shape, which is what downstream rootless
// tooling in the ecosystem expects this table to look like.
type UserMapping = user.IDMap

// RunningInUserNS reports whether the calling process is already confined to
// a user namespace (moby/sys/userns), in which case a further EnableUser
// setup would fail and should be skipped by the caller.
func RunningInUserNS() bool {
	return userns.RunningInUserNS()
}

// NamespaceConfig selects which namespaces to create and how to configure
// the ones that need more than a bare unshare (user, uts).
type NamespaceConfig struct {
	EnablePID    bool
	EnableNet    bool
	EnableMount  bool
	EnableUTS    bool
	EnableIPC    bool
	EnableUser   bool
	EnableCgroup bool

	UserMappings  []UserMapping
	GroupMappings []UserMapping

	Hostname   string
	Domainname string
}

// DefaultNamespaceConfig enables every namespace but user (spec.md §4.8: the
// original's security-conscious default, preserved here).
func DefaultNamespaceConfig() NamespaceConfig {
	return NamespaceConfig{
		EnablePID:    true,
		EnableNet:    true,
		EnableMount:  true,
		EnableUTS:    true,
		EnableIPC:    true,
		EnableUser:   false,
		EnableCgroup: true,
	}
}

// RootlessNamespaceConfig maps the current process's uid/gid to root inside
// the container's user namespace, the shape a rootless launch needs.
func RootlessNamespaceConfig() NamespaceConfig {
	uid := int64(unix.Getuid())
	gid := int64(unix.Getgid())
	return NamespaceConfig{
		EnablePID:     true,
		EnableNet:     true,
		EnableMount:   true,
		EnableUTS:     true,
		EnableIPC:     true,
		EnableUser:    true,
		EnableCgroup:  false,
		UserMappings:  []UserMapping{{ContainerID: 0, HostID: uid, Size: 1}},
		GroupMappings: []UserMapping{{ContainerID: 0, HostID: gid, Size: 1}},
		Hostname:      "nexuscore",
	}
}

// NamespaceManager applies a NamespaceConfig to the calling process (it must
// run in the child after the create-and-pause fork, per spec.md §4.8's
// composite application order step 4).
type NamespaceManager struct {
	cfg NamespaceConfig
}

// NewNamespaceManager builds a manager for cfg.
func NewNamespaceManager(cfg NamespaceConfig) *NamespaceManager {
	return &NamespaceManager{cfg: cfg}
}

// Setup issues the unshare in one step, then performs the per-namespace
// follow-up configuration (user mapping, UTS, mount propagation). The code
// is Linux-only: there is no variant for other platforms that returns
// UnsupportedFeature.
func (m *NamespaceManager) Setup() error {
	logger := corelog.WithComponent("isolation.namespace")

	flags := m.cloneFlags()
	if flags != 0 {
		logger.Info().Int("flags", flags).Msg("creating namespaces")
		if err := unshare(flags); err != nil {
			return errtag.New(errtag.Namespace, errtag.High, fmt.Errorf("unshare: %w", err)).WithStep("enter_namespaces")
		}
	}

	if m.cfg.EnableUser {
		if err := m.setupUserNamespace(); err != nil {
			return err
		}
	}
	if m.cfg.EnableUTS {
		if err := m.setupUTS(); err != nil {
			return err
		}
	}
	if m.cfg.EnableMount {
		if err := m.setupMountPropagation(); err != nil {
			return err
		}
	}

	logger.Debug().Msg("namespaces configured")
	return nil
}

func (m *NamespaceManager) cloneFlags() int {
	var flags int
	if m.cfg.EnablePID {
		flags |= unix.CLONE_NEWPID
	}
	if m.cfg.EnableNet {
		flags |= unix.CLONE_NEWNET
	}
	if m.cfg.EnableMount {
		flags |= unix.CLONE_NEWNS
	}
	if m.cfg.EnableUTS {
		flags |= unix.CLONE_NEWUTS
	}
	if m.cfg.EnableIPC {
		flags |= unix.CLONE_NEWIPC
	}
	if m.cfg.EnableUser {
		flags |= unix.CLONE_NEWUSER
	}
	if m.cfg.EnableCgroup {
		flags |= unix.CLONE_NEWCGROUP
	}
	return flags
}

// setupUserNamespace writes the uid_map/gid_map tables for the current
// process and disables supplementary group changes, matching spec.md §4.8's
// "User-namespace setup writes UID and GID mapping tables ... and disables
// supplementary group changes".
func (m *NamespaceManager) setupUserNamespace() error {
	pid := unix.Getpid()

	if len(m.cfg.UserMappings) > 0 {
		if err := writeIDMap(fmt.Sprintf("/proc/%d/uid_map", pid), m.cfg.UserMappings); err != nil {
			return errtag.New(errtag.Namespace, errtag.High, err).WithStep("enter_namespaces")
		}
	}
	if err := denySetgroups(pid); err != nil {
		return errtag.New(errtag.Namespace, errtag.High, err).WithStep("enter_namespaces")
	}
	if len(m.cfg.GroupMappings) > 0 {
		if err := writeIDMap(fmt.Sprintf("/proc/%d/gid_map", pid), m.cfg.GroupMappings); err != nil {
			return errtag.New(errtag.Namespace, errtag.High, err).WithStep("enter_namespaces")
		}
	}
	return nil
}

func (m *NamespaceManager) setupUTS() error {
	if m.cfg.Hostname != "" {
		if err := unix.Sethostname([]byte(m.cfg.Hostname)); err != nil {
			return errtag.New(errtag.Namespace, errtag.Medium, fmt.Errorf("sethostname: %w", err)).WithStep("enter_namespaces")
		}
	}
	if m.cfg.Domainname != "" {
		if err := unix.Setdomainname([]byte(m.cfg.Domainname)); err != nil {
			return errtag.New(errtag.Namespace, errtag.Medium, fmt.Errorf("setdomainname: %w", err)).WithStep("enter_namespaces")
		}
	}
	return nil
}

// setupMountPropagation sets the root mount propagation to slave+recursive
// so host mounts do not leak back into the container, per spec.md §4.8.
func (m *NamespaceManager) setupMountPropagation() error {
	if err := unix.Mount("", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return errtag.New(errtag.Mount, errtag.High, fmt.Errorf("set root propagation: %w", err)).WithStep("pivot_mount")
	}
	return nil
}

// CurrentMounts reports the host's mount table.
func CurrentMounts() ([]*mountinfo.Info, error) {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, errtag.New(errtag.Mount, errtag.Medium, err)
	}
	return infos, nil
}

func writeIDMap(path string, mappings []UserMapping) error {
	var content string
	for _, m := range mappings {
		content += fmt.Sprintf("%d %d %d\n", m.ContainerID, m.HostID, m.Size)
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func denySetgroups(pid int) error {
	path := fmt.Sprintf("/proc/%d/setgroups", pid)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("deny\n"); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// unshare wraps unix.Unshare so a future non-Linux build variant can swap in
// an UnsupportedFeature stub without touching callers.
func unshare(flags int) error {
	return unix.Unshare(flags)
}
