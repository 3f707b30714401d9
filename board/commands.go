package board

import (
	"context"

	"github.com/google/uuid"

	"taskboard/domain"
)

// LoadAll replaces the entire local state with the remote one: all task
// lists, then all tasks per list. It is the initial load and the forced
// recovery path when a command cannot reconcile locally.
func (s *Store) LoadAll(ctx context.Context) error {
	lists, err := s.gw.ListTaskLists(ctx)
	if err != nil {
		s.log.WithError(err).Error("load task lists")
		s.note.Notify("Error loading tasks", KindError)
		return err
	}
	all := make([]domain.Task, 0)
	for _, list := range lists {
		tasks, err := s.gw.ListTasks(ctx, list.ID)
		if err != nil {
			s.log.WithError(err).WithField("list", list.ID).Error("load tasks")
			s.note.Notify("Error loading tasks", KindError)
			return err
		}
		// Tag each task with its owning list on arrival.
		for i := range tasks {
			tasks[i].TaskListID = list.ID
		}
		all = append(all, tasks...)
	}
	s.swap(func(Snapshot) Snapshot {
		return Snapshot{TaskLists: lists, Tasks: all}
	})
	return nil
}

// Save creates a task in listID, or updates the given existing task in
// place. The only synchronous failure is an empty title; remote failures
// surface as error notifications.
func (s *Store) Save(existing *domain.Task, listID string, data domain.TaskData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if existing != nil {
		s.update(*existing, data)
		return nil
	}
	s.create(listID, data)
	return nil
}

func (s *Store) update(prior domain.Task, data domain.TaskData) {
	next := prior
	next.Title = data.Title
	next.Notes = data.Notes
	next.Due = data.Due
	if data.Status != "" {
		next.Status = data.Status
	}
	s.swap(func(st Snapshot) Snapshot {
		replaceTask(st.Tasks, prior.ID, next)
		return st
	})
	s.note.Notify("Task updated successfully", KindSuccess)

	s.dispatch(func(ctx context.Context) {
		task, err := s.gw.UpdateTask(ctx, prior.TaskListID, prior.ID, data)
		if err != nil {
			s.log.WithError(err).WithField("task", prior.ID).Warn("update task")
			s.swap(func(st Snapshot) Snapshot {
				replaceTask(st.Tasks, prior.ID, prior)
				return st
			})
			s.note.Notify("Error saving task", KindError)
			return
		}
		// Adopt the authoritative record, keeping the local list tag.
		task.TaskListID = prior.TaskListID
		s.swap(func(st Snapshot) Snapshot {
			replaceTask(st.Tasks, prior.ID, task)
			return st
		})
	})
}

func (s *Store) create(listID string, data domain.TaskData) {
	placeholder := domain.Task{
		ID:         "pending-" + uuid.NewString(),
		Title:      data.Title,
		Notes:      data.Notes,
		Due:        data.Due,
		Status:     domain.StatusNeedsAction,
		TaskListID: listID,
	}
	s.swap(func(st Snapshot) Snapshot {
		st.Tasks = append(st.Tasks, placeholder)
		return st
	})
	s.note.Notify("Task created successfully", KindSuccess)

	s.dispatch(func(ctx context.Context) {
		task, err := s.gw.CreateTask(ctx, listID, data)
		if err != nil {
			s.log.WithError(err).WithField("list", listID).Warn("create task")
			s.swap(func(st Snapshot) Snapshot {
				st.Tasks, _, _ = removeTask(st.Tasks, placeholder.ID)
				return st
			})
			s.note.Notify("Error saving task", KindError)
			return
		}
		s.swap(func(st Snapshot) Snapshot {
			replaceTask(st.Tasks, placeholder.ID, task)
			return st
		})
	})
}

// Delete removes the task optimistically and confirms remotely. On failure
// the task is re-inserted, appended rather than restored to its original
// position.
func (s *Store) Delete(task domain.Task) {
	s.swap(func(st Snapshot) Snapshot {
		st.Tasks, _, _ = removeTask(st.Tasks, task.ID)
		return st
	})
	s.note.Notify("Task deleted", KindSuccess)

	s.dispatch(func(ctx context.Context) {
		if err := s.gw.DeleteTask(ctx, task.TaskListID, task.ID); err != nil {
			s.log.WithError(err).WithField("task", task.ID).Warn("delete task")
			s.swap(func(st Snapshot) Snapshot {
				st.Tasks = append(st.Tasks, task)
				return st
			})
			s.note.Notify("Error deleting task", KindError)
		}
	})
}

// Move relocates a task to another list. The remote move is delete-then-
// create, so on success the local copy is replaced with the fresh-identity
// record; on failure the original task object is restored, since the remote
// move may not have executed at all or only partially.
func (s *Store) Move(taskID, fromListID, toListID string, data domain.TaskData) {
	if fromListID == toListID {
		return
	}
	var original domain.Task
	found := false
	s.swap(func(st Snapshot) Snapshot {
		tasks, t, ok := removeTask(st.Tasks, taskID)
		if !ok {
			return st
		}
		original, found = t, true
		moved := t
		moved.TaskListID = toListID
		st.Tasks = append(tasks, moved)
		return st
	})
	if !found {
		return
	}
	s.note.Notify("Task moved successfully", KindSuccess)

	s.dispatch(func(ctx context.Context) {
		task, err := s.gw.MoveTask(ctx, taskID, fromListID, toListID, data)
		if err != nil {
			s.log.WithError(err).WithField("task", taskID).Warn("move task")
			s.swap(func(st Snapshot) Snapshot {
				tasks, _, _ := removeTask(st.Tasks, taskID)
				st.Tasks = append(tasks, original)
				return st
			})
			s.note.Notify("Error moving task", KindError)
			return
		}
		s.swap(func(st Snapshot) Snapshot {
			tasks, _, _ := removeTask(st.Tasks, taskID)
			st.Tasks = append(tasks, task)
			return st
		})
	})
}

// Reorder splices the task to newIndex within its list. The preceding-task
// hint sent to the remote service is computed from the local ordering before
// the splice. A remote failure forces a full reload: once optimistic reorders
// may have stacked up, a local-only rollback cannot be computed reliably.
func (s *Store) Reorder(taskID, listID string, newIndex int) {
	var previousID string
	found := false
	s.swap(func(st Snapshot) Snapshot {
		list := domain.TasksForList(st.Tasks, listID)
		if newIndex > 0 && newIndex-1 < len(list) {
			previousID = list[newIndex-1].ID
		}
		tasks, moved, ok := removeTask(st.Tasks, taskID)
		if !ok {
			return st
		}
		found = true
		rest := domain.TasksForList(tasks, listID)
		insert := newIndex
		if insert > len(rest) {
			insert = len(rest)
		}
		global := -1
		for i, t := range tasks {
			if t.TaskListID == listID {
				global = i
				break
			}
		}
		if global == -1 {
			global = len(tasks)
		} else {
			global += insert
		}
		st.Tasks = append(tasks[:global:global], append([]domain.Task{moved}, tasks[global:]...)...)
		return st
	})
	if !found {
		return
	}
	s.note.Notify("Task priority updated", KindSuccess)

	s.dispatch(func(ctx context.Context) {
		if _, err := s.gw.ReorderTask(ctx, listID, taskID, previousID); err != nil {
			s.log.WithError(err).WithField("task", taskID).Warn("reorder task")
			s.note.Notify("Error reordering task", KindError)
			if lerr := s.LoadAll(ctx); lerr != nil {
				s.log.WithError(lerr).Error("resync after failed reorder")
			}
		}
	})
}

// ToggleComplete flips the task between needsAction and completed. The
// remote update wants the full record, so the unchanged fields ride along.
// On failure only the status field reverts.
func (s *Store) ToggleComplete(task domain.Task) {
	newStatus := task.Toggled()
	applied := false
	s.swap(func(st Snapshot) Snapshot {
		applied = setStatus(st.Tasks, task.ID, newStatus)
		return st
	})
	if !applied {
		return
	}
	if newStatus == domain.StatusCompleted {
		s.note.Notify("Task marked as complete", KindSuccess)
	} else {
		s.note.Notify("Task marked as incomplete", KindSuccess)
	}

	data := domain.TaskData{Title: task.Title, Notes: task.Notes, Due: task.Due, Status: newStatus}
	s.dispatch(func(ctx context.Context) {
		if _, err := s.gw.UpdateTask(ctx, task.TaskListID, task.ID, data); err != nil {
			s.log.WithError(err).WithField("task", task.ID).Warn("toggle task status")
			s.swap(func(st Snapshot) Snapshot {
				setStatus(st.Tasks, task.ID, task.Status)
				return st
			})
			s.note.Notify("Error updating task status", KindError)
		}
	})
}

func setStatus(tasks []domain.Task, taskID string, status domain.TaskStatus) bool {
	for i := range tasks {
		if tasks[i].ID == taskID {
			tasks[i].Status = status
			return true
		}
	}
	return false
}
