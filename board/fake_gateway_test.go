package board

import (
	"context"
	"errors"
	"sync"

	"taskboard/domain"
)

type reorderCall struct {
	listID, taskID, previousID string
}

type fakeGateway struct {
	mu sync.Mutex

	listListsFn func(ctx context.Context) ([]domain.TaskList, error)
	listTasksFn func(ctx context.Context, listID string) ([]domain.Task, error)
	createFn    func(ctx context.Context, listID string, data domain.TaskData) (domain.Task, error)
	updateFn    func(ctx context.Context, listID, taskID string, data domain.TaskData) (domain.Task, error)
	deleteFn    func(ctx context.Context, listID, taskID string) error
	moveFn      func(ctx context.Context, taskID, fromListID, toListID string, data domain.TaskData) (domain.Task, error)
	reorderFn   func(ctx context.Context, listID, taskID, previousID string) (domain.Task, error)

	reorderCalls []reorderCall
	moveCalls    int
}

func (f *fakeGateway) ListTaskLists(ctx context.Context) ([]domain.TaskList, error) {
	if f.listListsFn == nil {
		return nil, errors.New("unexpected ListTaskLists call")
	}
	return f.listListsFn(ctx)
}

func (f *fakeGateway) ListTasks(ctx context.Context, listID string) ([]domain.Task, error) {
	if f.listTasksFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return f.listTasksFn(ctx, listID)
}

func (f *fakeGateway) CreateTask(ctx context.Context, listID string, data domain.TaskData) (domain.Task, error) {
	if f.createFn == nil {
		return domain.Task{}, errors.New("unexpected CreateTask call")
	}
	return f.createFn(ctx, listID, data)
}

func (f *fakeGateway) UpdateTask(ctx context.Context, listID, taskID string, data domain.TaskData) (domain.Task, error) {
	if f.updateFn == nil {
		return domain.Task{}, errors.New("unexpected UpdateTask call")
	}
	return f.updateFn(ctx, listID, taskID, data)
}

func (f *fakeGateway) DeleteTask(ctx context.Context, listID, taskID string) error {
	if f.deleteFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return f.deleteFn(ctx, listID, taskID)
}

func (f *fakeGateway) MoveTask(ctx context.Context, taskID, fromListID, toListID string, data domain.TaskData) (domain.Task, error) {
	f.mu.Lock()
	f.moveCalls++
	f.mu.Unlock()
	if f.moveFn == nil {
		return domain.Task{}, errors.New("unexpected MoveTask call")
	}
	return f.moveFn(ctx, taskID, fromListID, toListID, data)
}

func (f *fakeGateway) ReorderTask(ctx context.Context, listID, taskID, previousID string) (domain.Task, error) {
	f.mu.Lock()
	f.reorderCalls = append(f.reorderCalls, reorderCall{listID: listID, taskID: taskID, previousID: previousID})
	f.mu.Unlock()
	if f.reorderFn == nil {
		return domain.Task{}, errors.New("unexpected ReorderTask call")
	}
	return f.reorderFn(ctx, listID, taskID, previousID)
}

func (f *fakeGateway) recordedReorders() []reorderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]reorderCall, len(f.reorderCalls))
	copy(out, f.reorderCalls)
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
	msgs  []string
}

func (n *recordingNotifier) Notify(message, kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, message)
	n.kinds = append(n.kinds, kind)
}

func (n *recordingNotifier) lastKind() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.kinds) == 0 {
		return ""
	}
	return n.kinds[len(n.kinds)-1]
}

func (n *recordingNotifier) countKind(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, k := range n.kinds {
		if k == kind {
			c++
		}
	}
	return c
}
