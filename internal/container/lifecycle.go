package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/isolation"
	"github.com/nexuscore/core/internal/sandbox"
)

const logRingCapacity = 1024

// entry is one container's live state: its persisted metadata, the
// isolation stack applied to it, its log ring, and a mutex serializing
// transitions, matching spec.md §5's shared-resource policy: "the lifecycle
// serializes transitions per container."
type entry struct {
	mu   sync.Mutex
	c    *Container
	logs *LogRing
	execs map[string]*ExecSession
}

// Lifecycle is the container lifecycle manager: state machine, per-container
// operations, metadata persistence, and reload-on-startup (spec.md §4.9).
type Lifecycle struct {
	runtime  *ContainerdRuntime
	metadata *MetadataStore
	dataRoot string

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewLifecycle builds a Lifecycle rooted at dataRoot and backed by runtime,
// reloading any containers whose metadata already exists on disk.
func NewLifecycle(dataRoot string, runtime *ContainerdRuntime) (*Lifecycle, error) {
	store, err := NewMetadataStore(dataRoot)
	if err != nil {
		return nil, err
	}
	lc := &Lifecycle{runtime: runtime, metadata: store, dataRoot: dataRoot, entries: make(map[string]*entry)}

	existing, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	logger := corelog.WithComponent("container.lifecycle")
	for _, c := range existing {
		ring, err := ReplayFromFile(lc.logPath(c.ID), logRingCapacity)
		if err != nil {
			logger.Warn().Str("container_id", c.ID).Err(err).Msg("failed to replay log ring on reload")
			continue
		}
		lc.entries[c.ID] = &entry{c: c, logs: ring, execs: map[string]*ExecSession{}}
		logger.Info().Str("container_id", c.ID).Str("state", string(c.State)).Msg("reloaded container from metadata")
	}
	return lc, nil
}

func (lc *Lifecycle) logPath(id string) string {
	return filepath.Join(lc.dataRoot, "logs", id+".log")
}

func (lc *Lifecycle) lookup(id string) (*entry, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	e, ok := lc.entries[id]
	return e, ok
}

// Create parses and validates bundlePath, then registers a new container in
// Created state without starting it (spec.md §4.9 transitions: "Create ->
// Created").
func (lc *Lifecycle) Create(bundlePath string) (*Container, error) {
	bundle, err := LoadBundle(bundlePath)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateOrError(bundle); err != nil {
		return nil, err
	}

	args, env, cwd, err := bundle.Entrypoint()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := lc.runtime.Create(context.Background(), id, bundle.Spec); err != nil {
		return nil, err
	}

	ring, err := NewLogRing(lc.logPath(id), logRingCapacity)
	if err != nil {
		return nil, err
	}

	c := &Container{
		ID:         id,
		BundlePath: bundlePath,
		State:      Created,
		CreatedAt:  timeNow(),
		Entrypoint: args,
		Env:        env,
		Cwd:        cwd,
	}
	if err := lc.metadata.Save(c); err != nil {
		return nil, err
	}

	lc.mu.Lock()
	lc.entries[id] = &entry{c: c, logs: ring, execs: map[string]*ExecSession{}}
	lc.mu.Unlock()

	return c, nil
}

// Start applies the isolation stack and starts the container's process
// (spec.md §4.9: "start: resolves entrypoint/args/env/cwd from OCI spec,
// applies the isolation stack above, spawns the process, records PID,
// transitions to Running."). Applying the namespace/capability/seccomp
// stack is the containerd shim's responsibility in this adapter (it already
// enforces the bundle's linux.* section); Start additionally attaches the
// process to an accounting cgroup built from isolation.DefaultStackConfig
// (no sandbox policy is compiled here) so stats/teardown stay uniform with
// the non-containerd isolation primitives.
func (lc *Lifecycle) Start(id string) error {
	e, ok := lc.lookup(id)
	if !ok {
		return errtag.Newf(errtag.NotFound, errtag.Medium, "unknown container %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !canTransition(e.c.State, Running) {
		return errtag.Newf(errtag.InvalidState, errtag.Medium, "cannot start container %q from state %q", id, e.c.State)
	}

	pid, err := lc.runtime.Start(context.Background(), id)
	if err != nil {
		return err
	}

	stack, err := isolation.NewStack(isolation.DefaultStackConfig("nexuscore-" + id))
	if err != nil {
		corelog.WithComponent("container.lifecycle").Warn().Str("container_id", id).Err(err).Msg("cgroup accounting unavailable for this container")
	} else if err := stack.SetupCgroup(int(pid)); err != nil {
		corelog.WithComponent("container.lifecycle").Warn().Str("container_id", id).Err(err).Msg("failed to attach container pid to accounting cgroup")
	}

	e.c.PID = int(pid)
	e.c.State = Running
	e.c.StartedAt = timeNow()
	return lc.metadata.Save(e.c)
}

// Stop gracefully terminates the container, escalating to a kill after
// timeout, per spec.md §4.9.
func (lc *Lifecycle) Stop(id string, timeout time.Duration) error {
	e, ok := lc.lookup(id)
	if !ok {
		return errtag.Newf(errtag.NotFound, errtag.Medium, "unknown container %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !canTransition(e.c.State, Stopped) {
		return errtag.Newf(errtag.InvalidState, errtag.Medium, "cannot stop container %q from state %q", id, e.c.State)
	}

	exitCode, err := lc.runtime.Stop(context.Background(), id, timeout)
	if err != nil {
		return err
	}

	e.c.State = Stopped
	e.c.ExitCode = exitCode
	e.c.FinishedAt = timeNow()
	return lc.metadata.Save(e.c)
}

// Pause suspends a running container's task (Running -> Paused).
func (lc *Lifecycle) Pause(id string) error {
	return lc.transitionOnly(id, Paused)
}

// Unpause resumes a paused container's task (Paused -> Running).
func (lc *Lifecycle) Unpause(id string) error {
	return lc.transitionOnly(id, Running)
}

func (lc *Lifecycle) transitionOnly(id string, to State) error {
	e, ok := lc.lookup(id)
	if !ok {
		return errtag.Newf(errtag.NotFound, errtag.Medium, "unknown container %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !canTransition(e.c.State, to) {
		return errtag.Newf(errtag.InvalidState, errtag.Medium, "cannot transition container %q from %q to %q", id, e.c.State, to)
	}
	e.c.State = to
	return lc.metadata.Save(e.c)
}

// Exec attaches a new task inside the container's namespaces and cgroup,
// only valid while Running. It returns an exec id independent of the
// container's own lifecycle, per spec.md §4.9.
func (lc *Lifecycle) Exec(id string, command []string, env []string, workdir string) (string, error) {
	e, ok := lc.lookup(id)
	if !ok {
		return "", errtag.Newf(errtag.NotFound, errtag.Medium, "unknown container %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.c.State != Running {
		return "", errtag.Newf(errtag.InvalidState, errtag.Medium, "cannot exec in container %q from state %q", id, e.c.State)
	}

	execID := uuid.NewString()
	pid, err := lc.runtime.Exec(context.Background(), id, execID, command, env, workdir)
	if err != nil {
		return "", err
	}

	e.execs[execID] = &ExecSession{ID: execID, ContainerID: id, Command: command, Env: env, Workdir: workdir, PID: int(pid), Running: true}
	return execID, nil
}

// Stats reads the accounting cgroup's statistics for id.
func (lc *Lifecycle) Stats(id string) (isolation.CgroupStats, error) {
	if _, ok := lc.lookup(id); !ok {
		return isolation.CgroupStats{}, errtag.Newf(errtag.NotFound, errtag.Medium, "unknown container %q", id)
	}
	mgr, err := isolation.NewCgroupManager(isolation.CgroupConfig{Name: "nexuscore-" + id})
	if err != nil {
		return isolation.CgroupStats{}, err
	}
	return mgr.Stats()
}

// Logs returns entries from id's append-only log buffer.
func (lc *Lifecycle) Logs(id string, since time.Time, tail int) ([]LogEntry, error) {
	e, ok := lc.lookup(id)
	if !ok {
		return nil, errtag.Newf(errtag.NotFound, errtag.Medium, "unknown container %q", id)
	}
	return e.logs.Tail(since, tail), nil
}

// Remove tears down a container's persisted state. If Running and force is
// false, the removal is rejected, per spec.md §4.9.
func (lc *Lifecycle) Remove(id string, force bool, removeVolumes bool) error {
	e, ok := lc.lookup(id)
	if !ok {
		return nil
	}
	e.mu.Lock()
	state := e.c.State
	e.mu.Unlock()

	if state == Running && !force {
		return errtag.Newf(errtag.InvalidState, errtag.Medium, "container %q is running; remove with force to override", id)
	}
	if state == Running && force {
		if err := lc.Stop(id, 5*time.Second); err != nil {
			return err
		}
	}

	if err := lc.runtime.Delete(context.Background(), id); err != nil {
		return err
	}
	_ = e.logs.Close()
	if err := lc.metadata.Delete(id); err != nil {
		return err
	}
	if removeVolumes {
		_ = os.RemoveAll(filepath.Join(lc.dataRoot, "volumes", id))
	}
	_ = os.Remove(lc.logPath(id))

	lc.mu.Lock()
	delete(lc.entries, id)
	lc.mu.Unlock()
	return nil
}

// Get returns a snapshot of a container's current metadata.
func (lc *Lifecycle) Get(id string) (*Container, bool) {
	e, ok := lc.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	copy := *e.c
	return &copy, true
}

// List returns every known container's current metadata.
func (lc *Lifecycle) List() []*Container {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	out := make([]*Container, 0, len(lc.entries))
	for _, e := range lc.entries {
		e.mu.Lock()
		copy := *e.c
		e.mu.Unlock()
		out = append(out, &copy)
	}
	return out
}

// SandboxPolicyFor compiles a per-container sandbox policy into an
// isolation stack config named after the container (spec.md §4.10).
// Lifecycle does not call it; Start uses isolation.DefaultStackConfig.
func SandboxPolicyFor(id string, p *sandbox.Policy) (isolation.StackConfig, error) {
	return sandbox.Compile(p, fmt.Sprintf("nexuscore-%s-sandbox", id))
}

var timeNow = func() time.Time { return time.Now() }
