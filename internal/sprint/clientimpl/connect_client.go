package clientimpl

import (
	"context"

	"connectrpc.com/connect"

	"github.com/kazz187/trackline/internal/rpc"
	"github.com/kazz187/trackline/internal/sprint"
)

var _ sprint.Client = (*ConnectClient)(nil)

type ConnectClient struct {
	listSprints    *connect.Client[rpc.ListSprintsRequest, rpc.ListSprintsResponse]
	startSprint    *connect.Client[rpc.SprintRequest, rpc.SprintResponse]
	completeSprint *connect.Client[rpc.SprintRequest, rpc.SprintResponse]
}

func NewConnectClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectClient {
	return &ConnectClient{
		listSprints: connect.NewClient[rpc.ListSprintsRequest, rpc.ListSprintsResponse](
			httpClient, baseURL+rpc.SprintServiceListSprintsProcedure, opts...),
		startSprint: connect.NewClient[rpc.SprintRequest, rpc.SprintResponse](
			httpClient, baseURL+rpc.SprintServiceStartSprintProcedure, opts...),
		completeSprint: connect.NewClient[rpc.SprintRequest, rpc.SprintResponse](
			httpClient, baseURL+rpc.SprintServiceCompleteSprintProcedure, opts...),
	}
}

func (c *ConnectClient) ListSprints(ctx context.Context, projectID string) ([]sprint.Sprint, error) {
	res, err := c.listSprints.CallUnary(ctx, connect.NewRequest(&rpc.ListSprintsRequest{ProjectID: projectID}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Items, nil
}

func (c *ConnectClient) StartSprint(ctx context.Context, sprintID string) (*sprint.Sprint, error) {
	res, err := c.startSprint.CallUnary(ctx, connect.NewRequest(&rpc.SprintRequest{SprintID: sprintID}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Sprint, nil
}

func (c *ConnectClient) CompleteSprint(ctx context.Context, sprintID string) (*sprint.Sprint, error) {
	res, err := c.completeSprint.CallUnary(ctx, connect.NewRequest(&rpc.SprintRequest{SprintID: sprintID}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Sprint, nil
}
