package sprint

import "context"

// Client is the remote sprint API. Start and Complete return the canonical
// sprint; Complete may also move issues back to the backlog on the server.
type Client interface {
	ListSprints(ctx context.Context, projectID string) ([]Sprint, error)
	StartSprint(ctx context.Context, sprintID string) (*Sprint, error)
	CompleteSprint(ctx context.Context, sprintID string) (*Sprint, error)
}
