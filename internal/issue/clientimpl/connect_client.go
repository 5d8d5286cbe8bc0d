package clientimpl

import (
	"context"

	"connectrpc.com/connect"

	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/rpc"
)

var _ issue.Client = (*ConnectClient)(nil)

type ConnectClient struct {
	moveIssue  *connect.Client[issue.MoveRequest, rpc.MoveIssueResponse]
	listIssues *connect.Client[issue.ListFilter, rpc.ListIssuesResponse]
}

func NewConnectClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectClient {
	return &ConnectClient{
		moveIssue: connect.NewClient[issue.MoveRequest, rpc.MoveIssueResponse](
			httpClient, baseURL+rpc.IssueServiceMoveIssueProcedure, opts...),
		listIssues: connect.NewClient[issue.ListFilter, rpc.ListIssuesResponse](
			httpClient, baseURL+rpc.IssueServiceListIssuesProcedure, opts...),
	}
}

func (c *ConnectClient) MoveIssue(ctx context.Context, req issue.MoveRequest) (*issue.Issue, error) {
	res, err := c.moveIssue.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	return res.Msg.Issue, nil
}

func (c *ConnectClient) ListIssues(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, int, error) {
	res, err := c.listIssues.CallUnary(ctx, connect.NewRequest(&filter))
	if err != nil {
		return nil, 0, err
	}
	return res.Msg.Items, res.Msg.Total, nil
}
