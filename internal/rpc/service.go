package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC full service name this daemon registers under.
const serviceName = "nexuscore.rpc.Core"

// CoreServer is implemented by the daemon side (server.go's Server) and
// dispatched to by the hand-built ServiceDesc below.
type CoreServer interface {
	CreatePipeline(context.Context, *CreatePipelineRequest) (*CreatePipelineResponse, error)
	ExecutePipeline(context.Context, *ExecutePipelineRequest) (*ExecutePipelineResponse, error)
	CancelPipeline(context.Context, *CancelPipelineRequest) (*CancelPipelineResponse, error)
	PipelineStatus(context.Context, *PipelineStatusRequest) (*PipelineStatusResponse, error)
	WaitForPipeline(context.Context, *WaitForPipelineRequest) (*WaitForPipelineResponse, error)
	PipelineResult(context.Context, *PipelineResultRequest) (*PipelineResultResponse, error)

	ContainerCreate(context.Context, *ContainerCreateRequest) (*ContainerCreateResponse, error)
	ContainerStart(context.Context, *ContainerStartRequest) (*ContainerStartResponse, error)
	ContainerStop(context.Context, *ContainerStopRequest) (*ContainerStopResponse, error)
	ContainerRemove(context.Context, *ContainerRemoveRequest) (*ContainerRemoveResponse, error)
	ContainerExec(context.Context, *ContainerExecRequest) (*ContainerExecResponse, error)
	ContainerInspect(context.Context, *ContainerInspectRequest) (*ContainerInspectResponse, error)
	ContainerStats(context.Context, *ContainerStatsRequest) (*ContainerStatsResponse, error)
	ContainerLogs(context.Context, *ContainerLogsRequest) (*ContainerLogsResponse, error)
	ContainerList(context.Context, *ContainerListRequest) (*ContainerListResponse, error)
}

func unaryHandler[Req any, Resp any](call func(CoreServer, context.Context, *Req) (*Resp, error), fullMethod string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		core := srv.(CoreServer)
		if interceptor == nil {
			return call(core, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(core, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serviceDesc is the gRPC ServiceDesc this package's server registers and
// this package's client dials against, standing in for the protoc-gen-go
// ServiceDesc a .proto-based service would generate.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreatePipeline", Handler: unaryHandler(CoreServer.CreatePipeline, "/"+serviceName+"/CreatePipeline")},
		{MethodName: "ExecutePipeline", Handler: unaryHandler(CoreServer.ExecutePipeline, "/"+serviceName+"/ExecutePipeline")},
		{MethodName: "CancelPipeline", Handler: unaryHandler(CoreServer.CancelPipeline, "/"+serviceName+"/CancelPipeline")},
		{MethodName: "PipelineStatus", Handler: unaryHandler(CoreServer.PipelineStatus, "/"+serviceName+"/PipelineStatus")},
		{MethodName: "WaitForPipeline", Handler: unaryHandler(CoreServer.WaitForPipeline, "/"+serviceName+"/WaitForPipeline")},
		{MethodName: "PipelineResult", Handler: unaryHandler(CoreServer.PipelineResult, "/"+serviceName+"/PipelineResult")},
		{MethodName: "ContainerCreate", Handler: unaryHandler(CoreServer.ContainerCreate, "/"+serviceName+"/ContainerCreate")},
		{MethodName: "ContainerStart", Handler: unaryHandler(CoreServer.ContainerStart, "/"+serviceName+"/ContainerStart")},
		{MethodName: "ContainerStop", Handler: unaryHandler(CoreServer.ContainerStop, "/"+serviceName+"/ContainerStop")},
		{MethodName: "ContainerRemove", Handler: unaryHandler(CoreServer.ContainerRemove, "/"+serviceName+"/ContainerRemove")},
		{MethodName: "ContainerExec", Handler: unaryHandler(CoreServer.ContainerExec, "/"+serviceName+"/ContainerExec")},
		{MethodName: "ContainerInspect", Handler: unaryHandler(CoreServer.ContainerInspect, "/"+serviceName+"/ContainerInspect")},
		{MethodName: "ContainerStats", Handler: unaryHandler(CoreServer.ContainerStats, "/"+serviceName+"/ContainerStats")},
		{MethodName: "ContainerLogs", Handler: unaryHandler(CoreServer.ContainerLogs, "/"+serviceName+"/ContainerLogs")},
		{MethodName: "ContainerList", Handler: unaryHandler(CoreServer.ContainerList, "/"+serviceName+"/ContainerList")},
	},
	Metadata: "nexuscore/core.proto",
}
