package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a gRPC connection to a Server's Unix socket, grounded on
// the teacher's pkg/client.Client (conn + typed RPC wrapper methods) but
// dialing a local Unix socket with insecure transport credentials instead
// of mTLS, since both ends of this connection are the same machine's
// filesystem-permission-guarded socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a Server listening on socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	fullMethod := "/" + serviceName + "/" + method
	return c.conn.Invoke(ctx, fullMethod, req, resp, grpc.CallContentSubtype(codecName))
}

func (c *Client) CreatePipeline(ctx context.Context, req *CreatePipelineRequest) (*CreatePipelineResponse, error) {
	resp := new(CreatePipelineResponse)
	if err := c.invoke(ctx, "CreatePipeline", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ExecutePipeline(ctx context.Context, req *ExecutePipelineRequest) (*ExecutePipelineResponse, error) {
	resp := new(ExecutePipelineResponse)
	if err := c.invoke(ctx, "ExecutePipeline", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CancelPipeline(ctx context.Context, req *CancelPipelineRequest) (*CancelPipelineResponse, error) {
	resp := new(CancelPipelineResponse)
	if err := c.invoke(ctx, "CancelPipeline", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) PipelineStatus(ctx context.Context, req *PipelineStatusRequest) (*PipelineStatusResponse, error) {
	resp := new(PipelineStatusResponse)
	if err := c.invoke(ctx, "PipelineStatus", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) WaitForPipeline(ctx context.Context, req *WaitForPipelineRequest) (*WaitForPipelineResponse, error) {
	resp := new(WaitForPipelineResponse)
	if err := c.invoke(ctx, "WaitForPipeline", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) PipelineResult(ctx context.Context, req *PipelineResultRequest) (*PipelineResultResponse, error) {
	resp := new(PipelineResultResponse)
	if err := c.invoke(ctx, "PipelineResult", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerCreate(ctx context.Context, req *ContainerCreateRequest) (*ContainerCreateResponse, error) {
	resp := new(ContainerCreateResponse)
	if err := c.invoke(ctx, "ContainerCreate", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerStart(ctx context.Context, req *ContainerStartRequest) (*ContainerStartResponse, error) {
	resp := new(ContainerStartResponse)
	if err := c.invoke(ctx, "ContainerStart", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerStop(ctx context.Context, req *ContainerStopRequest) (*ContainerStopResponse, error) {
	resp := new(ContainerStopResponse)
	if err := c.invoke(ctx, "ContainerStop", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerRemove(ctx context.Context, req *ContainerRemoveRequest) (*ContainerRemoveResponse, error) {
	resp := new(ContainerRemoveResponse)
	if err := c.invoke(ctx, "ContainerRemove", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerExec(ctx context.Context, req *ContainerExecRequest) (*ContainerExecResponse, error) {
	resp := new(ContainerExecResponse)
	if err := c.invoke(ctx, "ContainerExec", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerInspect(ctx context.Context, req *ContainerInspectRequest) (*ContainerInspectResponse, error) {
	resp := new(ContainerInspectResponse)
	if err := c.invoke(ctx, "ContainerInspect", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerStats(ctx context.Context, req *ContainerStatsRequest) (*ContainerStatsResponse, error) {
	resp := new(ContainerStatsResponse)
	if err := c.invoke(ctx, "ContainerStats", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerLogs(ctx context.Context, req *ContainerLogsRequest) (*ContainerLogsResponse, error) {
	resp := new(ContainerLogsResponse)
	if err := c.invoke(ctx, "ContainerLogs", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ContainerList(ctx context.Context, req *ContainerListRequest) (*ContainerListResponse, error) {
	resp := new(ContainerListResponse)
	if err := c.invoke(ctx, "ContainerList", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
