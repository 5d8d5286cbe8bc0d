package rpc

import (
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/notification"
	"github.com/kazz187/trackline/internal/sprint"
)

type MoveIssueResponse struct {
	Issue *issue.Issue `json:"issue,omitempty"`
}

type ListIssuesResponse struct {
	Items []issue.Issue `json:"items"`
	Total int           `json:"total"`
}

type ListSprintsRequest struct {
	ProjectID string `json:"project_id"`
}

type ListSprintsResponse struct {
	Items []sprint.Sprint `json:"items"`
}

type SprintRequest struct {
	SprintID string `json:"sprint_id"`
}

type SprintResponse struct {
	Sprint *sprint.Sprint `json:"sprint,omitempty"`
}

type ListNotificationsRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListNotificationsResponse struct {
	Items []notification.Notification `json:"items"`
	Total int                         `json:"total"`
}

type GetUnreadCountResponse struct {
	Count int `json:"count"`
}

type MarkReadRequest struct {
	NotificationID string `json:"notification_id"`
}

type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}

type Empty struct{}
