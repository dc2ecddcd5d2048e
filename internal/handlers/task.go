package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tasktrack/apiserver/internal/services"
)

// TaskHandler provides HTTP handlers for tasks. Every route runs behind the
// auth middleware and acts on the caller's own tasks only.
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler constructs a handler with the provided service.
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// TaskRouter registers task routes on the given router.
func TaskRouter(r chi.Router, taskService *services.TaskService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(taskService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	if taskService.ExportsEnabled() {
		r.Post("/export", handler.ExportTasks)
	}
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
	})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	tasks, err := h.taskService.List(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(r.Context(), w, err, "failed to fetch tasks")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Get(r.Context(), identity.UserID, id)
	if err != nil {
		writeServiceError(r.Context(), w, err, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req TaskCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.taskService.Create(r.Context(), identity.UserID, req.toInput())
	if err != nil {
		writeServiceError(r.Context(), w, err, "create task failed")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TaskUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.taskService.Update(r.Context(), identity.UserID, id, req.toUpdate())
	if err != nil {
		writeServiceError(r.Context(), w, err, "update task failed")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.taskService.Delete(r.Context(), identity.UserID, id); err != nil {
		writeServiceError(r.Context(), w, err, "delete task failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) ExportTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	export, err := h.taskService.Export(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(r.Context(), w, err, "export tasks failed")
		return
	}

	writeJSON(w, http.StatusCreated, export)
}

// TaskCreateRequest is the body of POST /tasks. Owner and ID fields sent by
// the client are not decoded.
type TaskCreateRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Assignee    string  `json:"assignee"`
	DueDate     *string `json:"dueDate"`
}

func (req TaskCreateRequest) toInput() services.TaskInput {
	input := services.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Assignee:    req.Assignee,
	}
	if req.DueDate != nil {
		input.DueDate = *req.DueDate
	}
	return input
}

// TaskUpdateRequest is the body of PUT /tasks/{id}. Absent fields are left
// unchanged; "dueDate": null clears the due date.
type TaskUpdateRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *string        `json:"status"`
	Assignee    *string        `json:"assignee"`
	DueDate     optionalString `json:"dueDate"`
}

func (req TaskUpdateRequest) toUpdate() services.TaskUpdate {
	return services.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Assignee:    req.Assignee,
		DueDate:     req.DueDate.Value,
		DueDateSet:  req.DueDate.Set,
	}
}

// optionalString tells an absent JSON field apart from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return Identity{}, false
	}
	return identity, true
}

func parseTaskID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "taskID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("invalid task id")
	}
	return id.String(), nil
}
