package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Gateway is the remote surface the store reconciles optimistic state
// against.
type Gateway interface {
	ListTaskLists(ctx context.Context) ([]domain.TaskList, error)
	ListTasks(ctx context.Context, taskListID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, taskListID string, data domain.TaskData) (domain.Task, error)
	UpdateTask(ctx context.Context, taskListID, taskID string, data domain.TaskData) (domain.Task, error)
	DeleteTask(ctx context.Context, taskListID, taskID string) error
	MoveTask(ctx context.Context, taskID, fromListID, toListID string, data domain.TaskData) (domain.Task, error)
	ReorderTask(ctx context.Context, taskListID, taskID, previousTaskID string) (domain.Task, error)
}

// Snapshot is an immutable view of the whole board: every list and every
// task, tasks tagged with their owning list id.
type Snapshot struct {
	TaskLists []domain.TaskList `json:"taskLists"`
	Tasks     []domain.Task     `json:"tasks"`
}

func (sn Snapshot) clone() Snapshot {
	out := Snapshot{
		TaskLists: make([]domain.TaskList, len(sn.TaskLists)),
		Tasks:     make([]domain.Task, len(sn.Tasks)),
	}
	copy(out.TaskLists, sn.TaskLists)
	copy(out.Tasks, sn.Tasks)
	return out
}

// Store holds the canonical client-side board state. Commands apply an
// optimistic snapshot swap synchronously, then confirm against the gateway on
// a single worker goroutine; failures roll the snapshot back and raise an
// error notification. No command failure escapes to callers of the command.
type Store struct {
	gw   Gateway
	note Notifier
	log  *log.Logger

	mu      sync.Mutex
	state   Snapshot
	changed func(Snapshot)

	jobs     chan job
	workerWG sync.WaitGroup
	jobWG    sync.WaitGroup
}

type job func(ctx context.Context)

// Option customizes a Store.
type Option func(*Store)

// WithChangeListener registers a callback invoked with the new snapshot after
// every swap. The server's event stream hangs off this.
func WithChangeListener(fn func(Snapshot)) Option {
	return func(s *Store) { s.changed = fn }
}

// New creates a board store and starts its confirmation worker.
func New(gw Gateway, note Notifier, logger *log.Logger, opts ...Option) *Store {
	if gw == nil {
		panic("board.New: gateway is nil")
	}
	if note == nil {
		panic("board.New: notifier is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Store{
		gw:   gw,
		note: note,
		log:  logger,
		jobs: make(chan job, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workerWG.Add(1)
	go s.worker()
	return s
}

// worker runs confirmation jobs one at a time, in dispatch order. Remote
// calls therefore never interleave with each other, only with the optimistic
// phases of later commands.
func (s *Store) worker() {
	defer s.workerWG.Done()
	for j := range s.jobs {
		j(context.Background())
		s.jobWG.Done()
	}
}

func (s *Store) dispatch(j job) {
	s.jobWG.Add(1)
	s.jobs <- j
}

// Flush blocks until every dispatched confirmation job has finished.
func (s *Store) Flush() {
	s.jobWG.Wait()
}

// Close drains in-flight jobs and stops the worker.
func (s *Store) Close() {
	s.jobWG.Wait()
	close(s.jobs)
	s.workerWG.Wait()
}

// Snapshot returns a copy of the current board state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// FindTask looks a task up by id in the current snapshot.
func (s *Store) FindTask(taskID string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findTask(s.state.Tasks, taskID)
}

// swap derives the next snapshot from a copy of the current one and installs
// it. The mutate function must not retain the copy.
func (s *Store) swap(mutate func(Snapshot) Snapshot) {
	s.mu.Lock()
	next := mutate(s.state.clone())
	s.state = next
	changed := s.changed
	s.mu.Unlock()
	if changed != nil {
		changed(next.clone())
	}
}

func findTask(tasks []domain.Task, taskID string) (domain.Task, bool) {
	for _, t := range tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return domain.Task{}, false
}

func removeTask(tasks []domain.Task, taskID string) ([]domain.Task, domain.Task, bool) {
	for i, t := range tasks {
		if t.ID == taskID {
			out := make([]domain.Task, 0, len(tasks)-1)
			out = append(out, tasks[:i]...)
			out = append(out, tasks[i+1:]...)
			return out, t, true
		}
	}
	return tasks, domain.Task{}, false
}

func replaceTask(tasks []domain.Task, taskID string, with domain.Task) bool {
	for i, t := range tasks {
		if t.ID == taskID {
			tasks[i] = with
			return true
		}
	}
	return false
}
