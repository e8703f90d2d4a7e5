package container

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nexuscore/core/internal/errtag"
)

// DefaultNamespace is the containerd namespace this daemon's containers
// live under, generalized from the teacher's cluster-wide "warren"
// namespace to a single-daemon "nexuscore" one.
const DefaultNamespace = "nexuscore"

// DefaultSocketPath is the default containerd socket.
const DefaultSocketPath = "/run/containerd/containerd.sock"

// ContainerdRuntime is the containerd-backed adapter spec.md §4.9 grounds on
// the teacher's pkg/runtime.ContainerdRuntime, generalized from Warren's
// registry-image, multi-replica-service container model to a single,
// OCI-bundle-driven container per spec.md's state machine.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime dials the containerd socket at socketPath (or
// DefaultSocketPath if empty).
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, errtag.New(errtag.Configuration, errtag.High, fmt.Errorf("connect to containerd at %s: %w", socketPath, err))
	}
	return &ContainerdRuntime{client: client, namespace: DefaultNamespace}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *ContainerdRuntime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// Create creates a containerd container from an already-parsed OCI bundle
// spec. Unlike the teacher's registry-image flow, no image pull or snapshot
// is needed: the bundle supplies its own rootfs.
func (r *ContainerdRuntime) Create(ctx context.Context, id string, spec *specs.Spec) error {
	ctx = r.ctx(ctx)
	_, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithSpec(spec),
	)
	if err != nil {
		return errtag.New(errtag.Build, errtag.High, fmt.Errorf("create container %s: %w", id, err)).WithStep("create")
	}
	return nil
}

// Start creates and starts the container's task.
func (r *ContainerdRuntime) Start(ctx context.Context, id string) (pid uint32, err error) {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return 0, errtag.New(errtag.NotFound, errtag.Medium, fmt.Errorf("load container %s: %w", id, err))
	}

	task, err := c.NewTask(ctx, cio.NullIO)
	if err != nil {
		return 0, errtag.New(errtag.Execution, errtag.High, fmt.Errorf("create task for %s: %w", id, err)).WithStep("resume_and_exec")
	}
	if err := task.Start(ctx); err != nil {
		return 0, errtag.New(errtag.Execution, errtag.High, fmt.Errorf("start task for %s: %w", id, err)).WithStep("resume_and_exec")
	}
	return task.Pid(), nil
}

// Stop sends SIGTERM, waits up to timeout, then escalates to SIGKILL,
// matching spec.md §4.9: "send graceful terminate; wait up to timeout; if
// alive, send terminal kill."
func (r *ContainerdRuntime) Stop(ctx context.Context, id string, timeout time.Duration) (exitCode int, err error) {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return 0, errtag.New(errtag.NotFound, errtag.Medium, fmt.Errorf("load container %s: %w", id, err))
	}
	task, err := c.Task(ctx, nil)
	if err != nil {
		return 0, nil // no task: already stopped
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, errtag.New(errtag.Execution, errtag.Medium, fmt.Errorf("wait for task %s: %w", id, err))
	}
	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return 0, errtag.New(errtag.Execution, errtag.Medium, fmt.Errorf("sigterm task %s: %w", id, err))
	}

	select {
	case status := <-statusC:
		_, _ = task.Delete(ctx)
		return int(status.ExitCode()), nil
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return 0, errtag.New(errtag.Execution, errtag.High, fmt.Errorf("sigkill task %s: %w", id, err))
		}
		status := <-statusC
		_, _ = task.Delete(ctx)
		return int(status.ExitCode()), nil
	}
}

// Exec attaches a new process inside the container's task, returning its
// PID. The exec id's lifecycle is tracked by the caller independently of the
// container's main process, per spec.md §4.9.
func (r *ContainerdRuntime) Exec(ctx context.Context, id, execID string, args []string, env []string, cwd string) (pid uint32, err error) {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return 0, errtag.New(errtag.NotFound, errtag.Medium, fmt.Errorf("load container %s: %w", id, err))
	}
	task, err := c.Task(ctx, nil)
	if err != nil {
		return 0, errtag.Newf(errtag.InvalidState, errtag.Medium, "container %s has no running task", id)
	}

	spec := &specs.Process{Args: args, Env: env, Cwd: cwd}
	process, err := task.Exec(ctx, execID, spec, cio.NullIO)
	if err != nil {
		return 0, errtag.New(errtag.Execution, errtag.High, fmt.Errorf("exec in %s: %w", id, err))
	}
	if err := process.Start(ctx); err != nil {
		return 0, errtag.New(errtag.Execution, errtag.High, fmt.Errorf("start exec in %s: %w", id, err))
	}
	return process.Pid(), nil
}

// Delete removes the container and its task/snapshot.
func (r *ContainerdRuntime) Delete(ctx context.Context, id string) error {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil
	}
	if task, err := c.Task(ctx, nil); err == nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
	}
	if err := c.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return errtag.New(errtag.Execution, errtag.Medium, fmt.Errorf("delete container %s: %w", id, err))
	}
	return nil
}

// Status maps the containerd task status to our State.
func (r *ContainerdRuntime) Status(ctx context.Context, id string) (State, error) {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return "", errtag.New(errtag.NotFound, errtag.Medium, fmt.Errorf("load container %s: %w", id, err))
	}
	task, err := c.Task(ctx, nil)
	if err != nil {
		return Created, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return "", errtag.New(errtag.Execution, errtag.Medium, fmt.Errorf("task status for %s: %w", id, err))
	}

	switch status.Status {
	case containerd.Running:
		return Running, nil
	case containerd.Paused:
		return Paused, nil
	case containerd.Stopped:
		return Stopped, nil
	default:
		return Created, nil
	}
}
