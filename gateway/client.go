package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskboard/domain"
)

const (
	defaultBaseURL  = "https://tasks.googleapis.com/tasks/v1"
	maxResponseSize = 4 << 20
)

// TokenSource supplies a valid bearer token for each remote call.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
}

// Client is a stateless typed facade over the remote tasks REST API. Every
// method obtains a token from the credential manager and issues one HTTP
// call; MoveTask issues two.
type Client struct {
	tokens TokenSource
	http   *http.Client
	base   string
	log    *log.Logger
	tracer trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. No request timeout is configured
// by default; callers rely on the transport's behavior.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Client) { g.http = c }
}

// WithBaseURL points the client at a different API root. Tests use this.
func WithBaseURL(base string) Option {
	return func(g *Client) { g.base = strings.TrimRight(base, "/") }
}

// New creates a gateway client.
func New(tokens TokenSource, logger *log.Logger, opts ...Option) *Client {
	if tokens == nil {
		panic("gateway.New: token source is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &Client{
		tokens: tokens,
		http:   http.DefaultClient,
		base:   defaultBaseURL,
		log:    logger,
		tracer: otel.Tracer("taskboard/gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type taskListsResponse struct {
	Items []domain.TaskList `json:"items"`
}

type tasksResponse struct {
	Items []domain.Task `json:"items"`
}

// ListTaskLists fetches all of the user's task lists.
func (c *Client) ListTaskLists(ctx context.Context) ([]domain.TaskList, error) {
	var resp taskListsResponse
	if err := c.do(ctx, http.MethodGet, "/users/@me/lists", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ListTasks fetches all tasks of one list, completed included, soft-deleted
// excluded.
func (c *Client) ListTasks(ctx context.Context, taskListID string) ([]domain.Task, error) {
	path := fmt.Sprintf("/lists/%s/tasks?showCompleted=true&showDeleted=false", url.PathEscape(taskListID))
	var resp tasksResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

type createTaskPayload struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
	Due   string `json:"due,omitempty"`
}

type updateTaskPayload struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Notes  string            `json:"notes,omitempty"`
	Due    string            `json:"due,omitempty"`
	Status domain.TaskStatus `json:"status,omitempty"`
}

// CreateTask creates a task in the given list.
func (c *Client) CreateTask(ctx context.Context, taskListID string, data domain.TaskData) (domain.Task, error) {
	path := fmt.Sprintf("/lists/%s/tasks", url.PathEscape(taskListID))
	payload := createTaskPayload{Title: data.Title, Notes: data.Notes, Due: data.Due}
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, path, payload, &task); err != nil {
		return domain.Task{}, err
	}
	task.TaskListID = taskListID
	return task, nil
}

// UpdateTask replaces the task's editable fields. The remote operation wants
// the complete record, not a partial patch.
func (c *Client) UpdateTask(ctx context.Context, taskListID, taskID string, data domain.TaskData) (domain.Task, error) {
	path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(taskListID), url.PathEscape(taskID))
	payload := updateTaskPayload{ID: taskID, Title: data.Title, Notes: data.Notes, Due: data.Due, Status: data.Status}
	var task domain.Task
	if err := c.do(ctx, http.MethodPut, path, payload, &task); err != nil {
		return domain.Task{}, err
	}
	task.TaskListID = taskListID
	return task, nil
}

// DeleteTask removes the task from its list.
func (c *Client) DeleteTask(ctx context.Context, taskListID, taskID string) error {
	path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(taskListID), url.PathEscape(taskID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// MoveTask relocates a task across lists as delete-then-create. The remote
// service has no atomic cross-list move, so the resulting task carries a new
// identity and callers must replace, not patch, their reference. A failure
// after the delete leaves the task absent from both lists remotely.
func (c *Client) MoveTask(ctx context.Context, taskID, fromListID, toListID string, data domain.TaskData) (domain.Task, error) {
	if err := c.DeleteTask(ctx, fromListID, taskID); err != nil {
		return domain.Task{}, err
	}
	return c.CreateTask(ctx, toListID, data)
}

type movePayload struct {
	Previous string `json:"previous,omitempty"`
}

// ReorderTask re-splices the task immediately after previousTaskID within its
// list. An empty previousTaskID moves it to the front.
func (c *Client) ReorderTask(ctx context.Context, taskListID, taskID, previousTaskID string) (domain.Task, error) {
	path := fmt.Sprintf("/lists/%s/tasks/%s/move", url.PathEscape(taskListID), url.PathEscape(taskID))
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, path, movePayload{Previous: previousTaskID}, &task); err != nil {
		return domain.Task{}, err
	}
	task.TaskListID = taskListID
	return task, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) (err error) {
	route := routeForSpan(path)
	metrics := newCallMetrics(c.log, method, route)
	ctx, span := c.tracer.Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", route),
		))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
		metrics.Log(err)
	}()

	token, err := c.tokens.ValidToken(ctx)
	if err != nil {
		metrics.SetErrorStage("token")
		return err
	}

	var body io.Reader
	if payload != nil {
		data, merr := sonic.ConfigStd.Marshal(payload)
		if merr != nil {
			metrics.SetErrorStage("encode_request")
			return merr
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		metrics.SetErrorStage("build_request")
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.SetErrorStage("transport")
		return err
	}
	defer resp.Body.Close()
	metrics.SetStatus(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.SetErrorStage("read_response")
		return err
	}
	if resp.StatusCode/100 != 2 {
		metrics.SetErrorStage("remote")
		return &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(raw, out); err != nil {
		metrics.SetErrorStage("decode_response")
		return err
	}
	return nil
}

// routeForSpan strips the query string so spans and metrics group by route.
func routeForSpan(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
