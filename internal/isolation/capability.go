package isolation

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
)

// capNumber maps a CAP_* name to its Linux capability bit number. Kept as an
// explicit table rather than relying on constants from a capability library,
// since the pack carries no such dependency (spec.md §4.8's allow-list is
// small and fixed).
var capNumber = map[string]uintptr{
	"CAP_CHOWN":              0,
	"CAP_DAC_OVERRIDE":       1,
	"CAP_DAC_READ_SEARCH":    2,
	"CAP_FOWNER":             3,
	"CAP_FSETID":             4,
	"CAP_KILL":               5,
	"CAP_SETGID":             6,
	"CAP_SETUID":             7,
	"CAP_SETPCAP":            8,
	"CAP_LINUX_IMMUTABLE":    9,
	"CAP_NET_BIND_SERVICE":   10,
	"CAP_NET_BROADCAST":      11,
	"CAP_NET_ADMIN":          12,
	"CAP_NET_RAW":            13,
	"CAP_IPC_LOCK":           14,
	"CAP_IPC_OWNER":          15,
	"CAP_SYS_MODULE":         16,
	"CAP_SYS_RAWIO":          17,
	"CAP_SYS_CHROOT":         18,
	"CAP_SYS_PTRACE":         19,
	"CAP_SYS_PACCT":          20,
	"CAP_SYS_ADMIN":          21,
	"CAP_SYS_BOOT":           22,
	"CAP_SYS_NICE":           23,
	"CAP_SYS_RESOURCE":       24,
	"CAP_SYS_TIME":           25,
	"CAP_SYS_TTY_CONFIG":     26,
	"CAP_MKNOD":              27,
	"CAP_LEASE":              28,
	"CAP_AUDIT_WRITE":        29,
	"CAP_AUDIT_CONTROL":      30,
	"CAP_SETFCAP":            31,
	"CAP_MAC_OVERRIDE":       32,
	"CAP_MAC_ADMIN":          33,
	"CAP_SYSLOG":             34,
	"CAP_WAKE_ALARM":         35,
	"CAP_BLOCK_SUSPEND":      36,
	"CAP_AUDIT_READ":         37,
}

// DefaultBoundingSet is spec.md §4.8's minimal bounding set: "drop everything
// outside {CHOWN, DAC_OVERRIDE, FOWNER, FSETID, KILL, SETGID, SETUID}".
func DefaultBoundingSet() []string {
	return []string{
		"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FOWNER", "CAP_FSETID",
		"CAP_KILL", "CAP_SETGID", "CAP_SETUID",
	}
}

// CapabilityManager narrows the calling process's bounding set and raises
// capabilities into its Effective/Permitted/Inheritable sets.
type CapabilityManager struct{}

// NewCapabilityManager builds a CapabilityManager.
func NewCapabilityManager() *CapabilityManager { return &CapabilityManager{} }

// SetNoNewPrivileges sets PR_SET_NO_NEW_PRIVS, required by spec.md §4.8's
// composite application order before capabilities are narrowed.
func (*CapabilityManager) SetNoNewPrivileges() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return errtag.New(errtag.Capability, errtag.High, fmt.Errorf("prctl PR_SET_NO_NEW_PRIVS: %w", err)).WithStep("set_no_new_privs")
	}
	return nil
}

// DropBoundingExcept drops every known capability from the bounding set
// except the ones named in keep (spec.md §4.8's minimal-bounding-set
// default, generalized to caller-specified keep sets).
func (*CapabilityManager) DropBoundingExcept(keep []string) error {
	logger := corelog.WithComponent("isolation.capability")
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		keepSet[strings.ToUpper(name)] = true
	}

	for name, bit := range capNumber {
		if keepSet[name] {
			continue
		}
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, bit, 0, 0, 0); err != nil {
			logger.Warn().Str("capability", name).Err(err).Msg("failed to drop capability from bounding set")
		}
	}
	return nil
}

// capUserHeader/capUserData mirror struct __user_cap_header_struct and
// struct __user_cap_data_struct from linux/capability.h for the raw capset
// syscall (version 3, 64-bit capability space split across two words).
type capUserHeader struct {
	version uint32
	pid     int32
}

type capUserData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

const linuxCapabilityVersion3 = 0x20080522

// AddToEffectivePermittedInheritable raises names into the Effective,
// Permitted, and Inheritable sets simultaneously, matching spec.md §4.8:
// "Adding enters Effective, Permitted, Inheritable simultaneously."
func (*CapabilityManager) AddToEffectivePermittedInheritable(names []string) error {
	var data [2]capUserData
	header := capUserHeader{version: linuxCapabilityVersion3, pid: 0}

	if _, _, errno := unix.Syscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(&header)), uintptr(unsafe.Pointer(&data[0])), 0); errno != 0 {
		return errtag.New(errtag.Capability, errtag.High, fmt.Errorf("capget: %w", errno)).WithStep("narrow_capabilities")
	}

	for _, name := range names {
		bit, ok := capNumber[strings.ToUpper(name)]
		if !ok {
			return errtag.Newf(errtag.Capability, errtag.Medium, "unknown capability %q", name).WithStep("narrow_capabilities")
		}
		word, shift := bit/32, bit%32
		data[word].effective |= 1 << shift
		data[word].permitted |= 1 << shift
		data[word].inheritable |= 1 << shift
	}

	if _, _, errno := unix.Syscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(&header)), uintptr(unsafe.Pointer(&data[0])), 0); errno != 0 {
		return errtag.New(errtag.Capability, errtag.High, fmt.Errorf("capset: %w", errno)).WithStep("narrow_capabilities")
	}
	return nil
}
