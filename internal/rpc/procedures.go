package rpc

const (
	IssueServiceName        = "trackline.v1.IssueService"
	SprintServiceName       = "trackline.v1.SprintService"
	NotificationServiceName = "trackline.v1.NotificationService"
)

const (
	IssueServiceMoveIssueProcedure  = "/" + IssueServiceName + "/MoveIssue"
	IssueServiceListIssuesProcedure = "/" + IssueServiceName + "/ListIssues"

	SprintServiceListSprintsProcedure    = "/" + SprintServiceName + "/ListSprints"
	SprintServiceStartSprintProcedure    = "/" + SprintServiceName + "/StartSprint"
	SprintServiceCompleteSprintProcedure = "/" + SprintServiceName + "/CompleteSprint"

	NotificationServiceListNotificationsProcedure = "/" + NotificationServiceName + "/ListNotifications"
	NotificationServiceGetUnreadCountProcedure    = "/" + NotificationServiceName + "/GetUnreadCount"
	NotificationServiceMarkReadProcedure          = "/" + NotificationServiceName + "/MarkRead"
	NotificationServiceMarkAllReadProcedure       = "/" + NotificationServiceName + "/MarkAllRead"
)

// PushPath is the websocket endpoint for realtime notifications.
const PushPath = "/ws/notifications"
