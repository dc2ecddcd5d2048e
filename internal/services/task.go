package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

const (
	defaultEventChannel = "task-events"
	exportContentType   = "application/json"
)

// TaskRepository defines owner-scoped persistence operations for tasks.
type TaskRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]types.Task, error)
	GetByOwner(ctx context.Context, ownerID, id string) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	UpdateByOwner(ctx context.Context, ownerID, id string, patch types.TaskPatch) (types.Task, error)
	DeleteByOwner(ctx context.Context, ownerID, id string) error
}

// EventPublisher delivers task events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ObjectStore receives task exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// TaskInput is the client payload for creating a task. Empty Status means
// todo; empty DueDate means no deadline.
type TaskInput struct {
	Title       string
	Description string
	Status      string
	Assignee    string
	DueDate     string
}

// TaskUpdate is the client payload for a partial update. Nil fields are left
// unchanged. When DueDateSet is true a nil or empty DueDate clears the
// deadline.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Assignee    *string
	DueDate     *string
	DueDateSet  bool
}

// TaskService encapsulates task use-cases. Every method takes the
// authenticated owner's ID and never touches another owner's tasks.
type TaskService struct {
	repo    TaskRepository
	events  EventPublisher
	channel string
	exports ObjectStore
	now     func() time.Time
}

type TaskOption func(*TaskService)

// WithEvents publishes a TaskEvent to channel after every successful write.
func WithEvents(publisher EventPublisher, channel string) TaskOption {
	return func(s *TaskService) {
		s.events = publisher
		if strings.TrimSpace(channel) != "" {
			s.channel = channel
		}
	}
}

// WithExports enables Export.
func WithExports(objects ObjectStore) TaskOption {
	return func(s *TaskService) {
		s.exports = objects
	}
}

func NewTaskService(repo TaskRepository, opts ...TaskOption) *TaskService {
	s := &TaskService{
		repo:    repo,
		channel: defaultEventChannel,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportsEnabled reports whether an object store was configured.
func (s *TaskService) ExportsEnabled() bool {
	return s.exports != nil
}

// List returns the owner's tasks in creation order.
func (s *TaskService) List(ctx context.Context, ownerID string) ([]types.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID, id string) (types.Task, error) {
	task, err := s.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return types.Task{}, mapStoreError(err, "get task")
	}
	return task, nil
}

// Create validates input and stores a task owned by ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID string, input TaskInput) (types.Task, error) {
	title, err := validateTitle(input.Title)
	if err != nil {
		return types.Task{}, err
	}

	status := types.TaskStatusTodo
	if input.Status != "" {
		if status, err = validateStatus(input.Status); err != nil {
			return types.Task{}, err
		}
	}

	var dueDate *time.Time
	if strings.TrimSpace(input.DueDate) != "" {
		if dueDate, err = ParseDueDate(input.DueDate); err != nil {
			return types.Task{}, err
		}
	}

	created, err := s.repo.Create(ctx, types.Task{
		Title:       title,
		Description: input.Description,
		Status:      status,
		Assignee:    input.Assignee,
		DueDate:     dueDate,
		OwnerID:     ownerID,
	})
	if err != nil {
		return types.Task{}, fmt.Errorf("create task: %w", err)
	}

	s.publish(ctx, types.TaskEventCreated, created)
	return created, nil
}

// Update validates the supplied fields and applies them atomically.
func (s *TaskService) Update(ctx context.Context, ownerID, id string, update TaskUpdate) (types.Task, error) {
	patch, err := buildPatch(update)
	if err != nil {
		return types.Task{}, err
	}
	if patch.Empty() {
		return s.Get(ctx, ownerID, id)
	}

	updated, err := s.repo.UpdateByOwner(ctx, ownerID, id, patch)
	if err != nil {
		return types.Task{}, mapStoreError(err, "update task")
	}

	s.publish(ctx, types.TaskEventUpdated, updated)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.DeleteByOwner(ctx, ownerID, id); err != nil {
		return mapStoreError(err, "delete task")
	}

	s.publish(ctx, types.TaskEventDeleted, types.Task{ID: id, OwnerID: ownerID})
	return nil
}

// Export uploads a JSON snapshot of the owner's tasks and returns its key.
func (s *TaskService) Export(ctx context.Context, ownerID string) (types.TaskExport, error) {
	if s.exports == nil {
		return types.TaskExport{}, ErrExportsDisabled
	}

	tasks, err := s.List(ctx, ownerID)
	if err != nil {
		return types.TaskExport{}, err
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return types.TaskExport{}, fmt.Errorf("encode export: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%d.json", ownerID, s.now().UTC().UnixNano())
	if err := s.exports.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return types.TaskExport{}, fmt.Errorf("upload export: %w", err)
	}

	return types.TaskExport{Key: key, Count: len(tasks)}, nil
}

// publish is best effort: the write has already been committed, so a
// broker failure is logged and swallowed.
func (s *TaskService) publish(ctx context.Context, eventType string, task types.Task) {
	if s.events == nil {
		return
	}

	event := types.TaskEvent{
		Type:       eventType,
		TaskID:     task.ID,
		OwnerID:    task.OwnerID,
		Status:     task.Status,
		OccurredAt: s.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		logging.FromContext(ctx).Warn("encode task event failed", "err", err, "type", eventType)
		return
	}

	attrs := map[string]string{
		"type":    eventType,
		"ownerId": task.OwnerID,
	}
	if _, err := s.events.Publish(ctx, s.channel, data, attrs); err != nil {
		logging.FromContext(ctx).Warn("publish task event failed",
			"err", err,
			"type", eventType,
			"task_id", task.ID,
		)
	}
}

// ParseDueDate accepts any unambiguous date or timestamp and normalises it to
// UTC with millisecond precision. Date-only values become midnight UTC.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil, invalidInput("dueDate must be a valid date")
	}
	due := parsed.UTC().Truncate(time.Millisecond)
	return &due, nil
}

func buildPatch(update TaskUpdate) (types.TaskPatch, error) {
	var patch types.TaskPatch

	if update.Title != nil {
		title, err := validateTitle(*update.Title)
		if err != nil {
			return types.TaskPatch{}, err
		}
		patch.Title = &title
	}
	if update.Status != nil {
		status, err := validateStatus(*update.Status)
		if err != nil {
			return types.TaskPatch{}, err
		}
		patch.Status = &status
	}
	if update.DueDateSet {
		if update.DueDate == nil || strings.TrimSpace(*update.DueDate) == "" {
			patch.ClearDueDate = true
		} else {
			due, err := ParseDueDate(*update.DueDate)
			if err != nil {
				return types.TaskPatch{}, err
			}
			patch.DueDate = due
		}
	}
	patch.Description = update.Description
	patch.Assignee = update.Assignee
	return patch, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalidInput("title is required and must be a non-empty string")
	}
	return title, nil
}

func validateStatus(raw string) (types.TaskStatus, error) {
	status := types.TaskStatus(raw)
	if !status.Valid() {
		names := make([]string, len(types.TaskStatuses))
		for i, st := range types.TaskStatuses {
			names[i] = string(st)
		}
		return "", invalidInput("status must be one of %s", strings.Join(names, ", "))
	}
	return status, nil
}

func mapStoreError(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
