package api

import (
	"context"

	"taskboard/auth"
	"taskboard/board"
	"taskboard/domain"
)

// Board is the local board state the handlers read and mutate.
type Board interface {
	Snapshot() board.Snapshot
	FindTask(taskID string) (domain.Task, bool)
	LoadAll(ctx context.Context) error
	Save(existing *domain.Task, listID string, data domain.TaskData) error
	Delete(task domain.Task)
	Move(taskID, fromListID, toListID string, data domain.TaskData)
	Reorder(taskID, listID string, newIndex int)
	ToggleComplete(task domain.Task)
}

// Session is implemented by the credential manager: sign-in flow, sign-out
// and the user profile.
type Session interface {
	AuthorizationURL() string
	VerifyState(state string) bool
	CompleteAuthorization(ctx context.Context, code string) (auth.Credential, error)
	IsAuthenticated() bool
	SignOut(ctx context.Context) error
	Profile(ctx context.Context) (domain.User, error)
}

// Notifications exposes the transient command-outcome messages.
type Notifications interface {
	Notify(message, kind string)
	Active() []board.Notification
	Dismiss(id string) bool
}
