package types

import "time"

// TaskStatus is the workflow state of a task. Any status may follow any
// other; no transition graph is enforced.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusDone       TaskStatus = "done"
)

// TaskStatuses lists the accepted status values in display order.
var TaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Task is a unit of work owned by exactly one user.
type Task struct {
	// ID is the opaque identifier assigned by the store on creation.
	ID string `json:"id" db:"id"`

	// Title is the required, non-blank summary of the task.
	Title string `json:"title" db:"title"`

	// Description holds optional free-form details.
	Description string `json:"description" db:"description"`

	// Status is the current workflow state.
	Status TaskStatus `json:"status" db:"status"`

	// Assignee is an optional free-text name; it is not linked to a User.
	Assignee string `json:"assignee" db:"assignee"`

	// DueDate is the optional deadline, kept in UTC. A nil value is
	// serialized as JSON null rather than omitted.
	DueDate *time.Time `json:"dueDate" db:"due_date"`

	// OwnerID is the ID of the user that created the task. It is set by the
	// server from the authenticated identity and never changes.
	OwnerID string `json:"ownerId" db:"owner_id"`

	// CreatedAt is the timestamp at which the task was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// TaskPatch carries the fields of a partial update. Nil pointers leave the
// stored value untouched; ClearDueDate removes the deadline. Ownership is
// not patchable.
type TaskPatch struct {
	Title        *string
	Description  *string
	Status       *TaskStatus
	Assignee     *string
	DueDate      *time.Time
	ClearDueDate bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil &&
		p.Description == nil &&
		p.Status == nil &&
		p.Assignee == nil &&
		p.DueDate == nil &&
		!p.ClearDueDate
}

// TaskEvent is published after a task has been created, updated or deleted.
type TaskEvent struct {
	Type       string     `json:"type"`
	TaskID     string     `json:"taskId"`
	OwnerID    string     `json:"ownerId"`
	Status     TaskStatus `json:"status,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

const (
	TaskEventCreated = "task.created"
	TaskEventUpdated = "task.updated"
	TaskEventDeleted = "task.deleted"
)

// TaskExport describes an uploaded snapshot of a user's tasks.
type TaskExport struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
