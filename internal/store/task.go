package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tasktrack/apiserver/types"
)

const taskColumns = `id, owner_id, title, description, status, assignee, due_date, created_at, updated_at`

// TaskRepository handles persistence for tasks. Every lookup, update and
// delete filters on both the task ID and the owner ID, so a task owned by
// someone else behaves exactly like a missing one.
type TaskRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewTaskRepository(db *sql.DB, dialect Dialect) *TaskRepository {
	return &TaskRepository{db: db, dialect: dialect}
}

// ListByOwner returns the owner's tasks, oldest first.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.Task, error) {
	tasks := make([]types.Task, 0)
	if _, err := uuid.Parse(ownerID); err != nil {
		return tasks, nil
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) GetByOwner(ctx context.Context, ownerID, id string) (types.Task, error) {
	if !validIDs(ownerID, id) {
		return types.Task{}, ErrNotFound
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, r.dialect.rebind(query), id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

// Create inserts a task with a freshly generated ID and timestamps.
func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	task.ID = uuid.NewString()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `
		INSERT INTO tasks (id, owner_id, title, description, status, assignee, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		r.dialect.rebind(query),
		task.ID,
		task.OwnerID,
		task.Title,
		task.Description,
		string(task.Status),
		task.Assignee,
		nullTime(task.DueDate),
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

// UpdateByOwner applies patch in a single UPDATE ... RETURNING statement and
// returns the stored result.
func (r *TaskRepository) UpdateByOwner(ctx context.Context, ownerID, id string, patch types.TaskPatch) (types.Task, error) {
	if !validIDs(ownerID, id) {
		return types.Task{}, ErrNotFound
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Assignee != nil {
		set("assignee", *patch.Assignee)
	}
	switch {
	case patch.ClearDueDate:
		set("due_date", sql.NullTime{})
	case patch.DueDate != nil:
		set("due_date", nullTime(patch.DueDate))
	}
	set("updated_at", time.Now().UTC().Truncate(time.Microsecond))

	args = append(args, id, ownerID)
	query := fmt.Sprintf(
		`UPDATE tasks SET %s WHERE id = $%d AND owner_id = $%d RETURNING %s`,
		strings.Join(sets, ", "),
		len(args)-1,
		len(args),
		taskColumns,
	)

	task, err := scanTask(r.db.QueryRowContext(ctx, r.dialect.rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) DeleteByOwner(ctx context.Context, ownerID, id string) error {
	if !validIDs(ownerID, id) {
		return ErrNotFound
	}

	const query = `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`
	result, err := r.db.ExecContext(ctx, r.dialect.rebind(query), id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var (
		task    types.Task
		status  string
		dueDate sql.NullTime
	)
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&status,
		&task.Assignee,
		&dueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return types.Task{}, err
	}

	task.Status = types.TaskStatus(status)
	if dueDate.Valid {
		due := dueDate.Time.UTC()
		task.DueDate = &due
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return task, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// validIDs guards the UUID-typed Postgres columns against malformed input,
// which would otherwise surface as a driver error instead of "not found".
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
