package domain

import "errors"

// TaskStatus is the completion state of a task. The remote service knows
// exactly two values.
type TaskStatus string

const (
	StatusNeedsAction TaskStatus = "needsAction"
	StatusCompleted   TaskStatus = "completed"
)

// ErrEmptyTitle rejects task data without a title.
var ErrEmptyTitle = errors.New("task title must not be empty")

// Task represents a single board item. A task belongs to exactly one list,
// recorded in TaskListID; the remote service scopes task ids to their list.
type Task struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Notes      string     `json:"notes,omitempty"`
	Status     TaskStatus `json:"status"`
	Due        string     `json:"due,omitempty"`
	Updated    string     `json:"updated,omitempty"`
	Completed  string     `json:"completed,omitempty"`
	Position   string     `json:"position,omitempty"`
	TaskListID string     `json:"taskListId"`
}

// Toggled returns the opposite completion status.
func (t Task) Toggled() TaskStatus {
	if t.Status == StatusCompleted {
		return StatusNeedsAction
	}
	return StatusCompleted
}

// TaskList is a board column. This client never creates, renames or deletes
// lists; they are managed on the remote side.
type TaskList struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Updated string `json:"updated,omitempty"`
}

// TaskData carries the caller-editable fields of a task. Status is only
// honoured by update operations; create always starts at needsAction.
type TaskData struct {
	Title  string     `json:"title"`
	Notes  string     `json:"notes,omitempty"`
	Due    string     `json:"due,omitempty"`
	Status TaskStatus `json:"status,omitempty"`
}

// Validate enforces the single client-side rule: a non-empty title.
func (d TaskData) Validate() error {
	if d.Title == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Data returns the editable fields of the task, status included.
func (t Task) Data() TaskData {
	return TaskData{Title: t.Title, Notes: t.Notes, Due: t.Due, Status: t.Status}
}

// TasksForList filters tasks down to one list, preserving order.
func TasksForList(tasks []Task, listID string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.TaskListID == listID {
			out = append(out, t)
		}
	}
	return out
}
