package rpc

import (
	"context"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"

	"github.com/nexuscore/core/internal/container"
	"github.com/nexuscore/core/internal/pipeline/manager"
)

// Server binds a pipeline manager and a container lifecycle to a Unix
// socket as a gRPC service, the daemon's control surface per spec.md
// §4.11, grounded on the teacher's pkg/api.Server wrapping grpc.Server
// over a listener.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	pipelines  *manager.Manager
	containers *container.Lifecycle
}

// NewServer constructs a Server listening on a Unix socket at socketPath,
// removing any stale socket file left behind by a prior run.
func NewServer(socketPath string, pipelines *manager.Manager, containers *container.Lifecycle) (*Server, error) {
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	s := &Server{listener: ln, pipelines: pipelines, containers: containers}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor()))
	s.grpcServer.RegisterService(&serviceDesc, CoreServer(s))
	return s, nil
}

// Serve blocks accepting RPCs until the server is stopped.
func (s *Server) Serve() error {
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the gRPC server and closes the listener.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) CreatePipeline(ctx context.Context, req *CreatePipelineRequest) (*CreatePipelineResponse, error) {
	id, err := s.pipelines.CreatePipeline(req.CommandLine, req.CachePlan)
	if err != nil {
		return nil, err
	}
	return &CreatePipelineResponse{PipelineID: id}, nil
}

func (s *Server) ExecutePipeline(ctx context.Context, req *ExecutePipelineRequest) (*ExecutePipelineResponse, error) {
	if err := s.pipelines.ExecutePipeline(req.PipelineID); err != nil {
		return nil, err
	}
	return &ExecutePipelineResponse{}, nil
}

func (s *Server) CancelPipeline(ctx context.Context, req *CancelPipelineRequest) (*CancelPipelineResponse, error) {
	if err := s.pipelines.CancelPipeline(req.PipelineID); err != nil {
		return nil, err
	}
	return &CancelPipelineResponse{}, nil
}

func (s *Server) PipelineStatus(ctx context.Context, req *PipelineStatusRequest) (*PipelineStatusResponse, error) {
	status, ok := s.pipelines.Status(req.PipelineID)
	return &PipelineStatusResponse{Status: string(status), Found: ok}, nil
}

func (s *Server) WaitForPipeline(ctx context.Context, req *WaitForPipelineRequest) (*WaitForPipelineResponse, error) {
	status, err := s.pipelines.WaitForPipeline(ctx, req.PipelineID, time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return &WaitForPipelineResponse{Status: string(status)}, nil
}

func (s *Server) PipelineResult(ctx context.Context, req *PipelineResultRequest) (*PipelineResultResponse, error) {
	result, ok := s.pipelines.Result(req.PipelineID)
	if !ok {
		return &PipelineResultResponse{Found: false}, nil
	}
	return &PipelineResultResponse{
		Found:     true,
		Success:   result.Success,
		ExitCode:  result.ExitCode,
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
		ElapsedMs: result.Elapsed().Milliseconds(),
	}, nil
}

func (s *Server) ContainerCreate(ctx context.Context, req *ContainerCreateRequest) (*ContainerCreateResponse, error) {
	c, err := s.containers.Create(req.BundlePath)
	if err != nil {
		return nil, err
	}
	return &ContainerCreateResponse{ContainerID: c.ID}, nil
}

func (s *Server) ContainerStart(ctx context.Context, req *ContainerStartRequest) (*ContainerStartResponse, error) {
	if err := s.containers.Start(req.ContainerID); err != nil {
		return nil, err
	}
	return &ContainerStartResponse{}, nil
}

func (s *Server) ContainerStop(ctx context.Context, req *ContainerStopRequest) (*ContainerStopResponse, error) {
	if err := s.containers.Stop(req.ContainerID, time.Duration(req.TimeoutMs)*time.Millisecond); err != nil {
		return nil, err
	}
	return &ContainerStopResponse{}, nil
}

func (s *Server) ContainerRemove(ctx context.Context, req *ContainerRemoveRequest) (*ContainerRemoveResponse, error) {
	if err := s.containers.Remove(req.ContainerID, req.Force, req.RemoveVolumes); err != nil {
		return nil, err
	}
	return &ContainerRemoveResponse{}, nil
}

func (s *Server) ContainerExec(ctx context.Context, req *ContainerExecRequest) (*ContainerExecResponse, error) {
	execID, err := s.containers.Exec(req.ContainerID, req.Command, req.Env, req.Workdir)
	if err != nil {
		return nil, err
	}
	return &ContainerExecResponse{ExecID: execID}, nil
}

func (s *Server) ContainerInspect(ctx context.Context, req *ContainerInspectRequest) (*ContainerInspectResponse, error) {
	c, ok := s.containers.Get(req.ContainerID)
	if !ok {
		return &ContainerInspectResponse{Found: false}, nil
	}
	return &ContainerInspectResponse{
		Found:       true,
		ContainerID: c.ID,
		State:       string(c.State),
		PID:         c.PID,
		ExitCode:    c.ExitCode,
		Entrypoint:  c.Entrypoint,
	}, nil
}

func (s *Server) ContainerStats(ctx context.Context, req *ContainerStatsRequest) (*ContainerStatsResponse, error) {
	stats, err := s.containers.Stats(req.ContainerID)
	if err != nil {
		return nil, err
	}
	return &ContainerStatsResponse{
		MemoryUsage: stats.MemoryUsage,
		PidsCurrent: stats.PidsCurrent,
		CPU:         stats.CPU,
	}, nil
}

func (s *Server) ContainerLogs(ctx context.Context, req *ContainerLogsRequest) (*ContainerLogsResponse, error) {
	since := time.UnixMilli(req.SinceUnixMs)
	entries, err := s.containers.Logs(req.ContainerID, since, req.Tail)
	if err != nil {
		return nil, err
	}
	out := make([]LogLine, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogLine{
			TimestampUnixMs: e.Timestamp.UnixMilli(),
			Stream:          e.Stream,
			Line:            e.Line,
		})
	}
	return &ContainerLogsResponse{Entries: out}, nil
}

func (s *Server) ContainerList(ctx context.Context, req *ContainerListRequest) (*ContainerListResponse, error) {
	containers := s.containers.List()
	out := make([]ContainerInspectResponse, 0, len(containers))
	for _, c := range containers {
		out = append(out, ContainerInspectResponse{
			Found:       true,
			ContainerID: c.ID,
			State:       string(c.State),
			PID:         c.PID,
			ExitCode:    c.ExitCode,
			Entrypoint:  c.Entrypoint,
		})
	}
	return &ContainerListResponse{Containers: out}, nil
}
