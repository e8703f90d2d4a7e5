// Package rpc is the daemon's local control surface (spec.md §4.11): a
// gRPC service bound to a Unix socket exposing the pipeline manager and
// the container lifecycle to cmd/corectl, grounded on the teacher's
// pkg/api (gRPC server over grpc.Server) and pkg/client (gRPC client
// wrapper), generalized from cluster RPC over mTLS to local daemon RPC
// over a Unix socket. Since this surface has no .proto-derived client
// code in the retrieval pack to regenerate from, the wire messages here
// are plain Go structs carried by a JSON codec registered with
// google.golang.org/grpc/encoding (see codec.go) rather than
// protoc-gen-go types — still real gRPC framing, transport, and
// method dispatch, just a different payload codec.
package rpc

// CreatePipelineRequest plans a new pipeline from a command line.
type CreatePipelineRequest struct {
	CommandLine string `json:"command_line"`
	CachePlan   bool   `json:"cache_plan"`
}

type CreatePipelineResponse struct {
	PipelineID string `json:"pipeline_id"`
}

type ExecutePipelineRequest struct {
	PipelineID string `json:"pipeline_id"`
}

type ExecutePipelineResponse struct{}

type CancelPipelineRequest struct {
	PipelineID string `json:"pipeline_id"`
}

type CancelPipelineResponse struct{}

type PipelineStatusRequest struct {
	PipelineID string `json:"pipeline_id"`
}

type PipelineStatusResponse struct {
	Status string `json:"status"`
	Found  bool   `json:"found"`
}

type WaitForPipelineRequest struct {
	PipelineID string `json:"pipeline_id"`
	TimeoutMs  int64  `json:"timeout_ms"`
}

type WaitForPipelineResponse struct {
	Status string `json:"status"`
}

type PipelineResultRequest struct {
	PipelineID string `json:"pipeline_id"`
}

type PipelineResultResponse struct {
	Found      bool   `json:"found"`
	Success    bool   `json:"success"`
	ExitCode   int    `json:"exit_code"`
	Stdout     []byte `json:"stdout"`
	Stderr     []byte `json:"stderr"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// ContainerCreateRequest creates a container from an on-disk OCI bundle.
type ContainerCreateRequest struct {
	BundlePath string `json:"bundle_path"`
}

type ContainerCreateResponse struct {
	ContainerID string `json:"container_id"`
}

type ContainerStartRequest struct {
	ContainerID string `json:"container_id"`
}

type ContainerStartResponse struct{}

type ContainerStopRequest struct {
	ContainerID string `json:"container_id"`
	TimeoutMs   int64  `json:"timeout_ms"`
}

type ContainerStopResponse struct{}

type ContainerRemoveRequest struct {
	ContainerID   string `json:"container_id"`
	Force         bool   `json:"force"`
	RemoveVolumes bool   `json:"remove_volumes"`
}

type ContainerRemoveResponse struct{}

type ContainerExecRequest struct {
	ContainerID string   `json:"container_id"`
	Command     []string `json:"command"`
	Env         []string `json:"env"`
	Workdir     string   `json:"workdir"`
}

type ContainerExecResponse struct {
	ExecID string `json:"exec_id"`
}

type ContainerInspectRequest struct {
	ContainerID string `json:"container_id"`
}

type ContainerInspectResponse struct {
	Found       bool     `json:"found"`
	ContainerID string   `json:"container_id"`
	State       string   `json:"state"`
	PID         int      `json:"pid"`
	ExitCode    int      `json:"exit_code"`
	Entrypoint  []string `json:"entrypoint"`
}

type ContainerStatsRequest struct {
	ContainerID string `json:"container_id"`
}

type ContainerStatsResponse struct {
	MemoryUsage uint64            `json:"memory_usage"`
	PidsCurrent uint64            `json:"pids_current"`
	CPU         map[string]uint64 `json:"cpu"`
}

type ContainerLogsRequest struct {
	ContainerID string `json:"container_id"`
	SinceUnixMs int64  `json:"since_unix_ms"`
	Tail        int    `json:"tail"`
}

type LogLine struct {
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	Stream          string `json:"stream"`
	Line            string `json:"line"`
}

type ContainerLogsResponse struct {
	Entries []LogLine `json:"entries"`
}

type ContainerListRequest struct{}

type ContainerListResponse struct {
	Containers []ContainerInspectResponse `json:"containers"`
}
