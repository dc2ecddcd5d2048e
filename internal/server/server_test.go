package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/db/dbtest"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/token"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "server-test-secret"

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func newTestRouter(t *testing.T, opts ...services.TaskOption) http.Handler {
	t.Helper()
	tokens, err := token.NewManager(testSecret)
	require.NoError(t, err)

	return NewRouter(Dependencies{
		DB:          dbtest.NewSQLite(t),
		Dialect:     store.SQLite,
		Tokens:      tokens,
		Hasher:      services.NewBcryptHasher(bcrypt.MinCost),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		TaskOptions: opts,
	})
}

func do(t *testing.T, h http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v), rec.Body.String())
	return v
}

type userBody struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type loginBody struct {
	Token string   `json:"token"`
	User  userBody `json:"user"`
}

type taskBody struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Assignee    string  `json:"assignee"`
	DueDate     *string `json:"dueDate"`
	OwnerID     string  `json:"ownerId"`
}

func registerAndLogin(t *testing.T, h http.Handler, username string) loginBody {
	t.Helper()
	creds := `{"username":"` + username + `","password":"hunter2!"}`

	rec := do(t, h, http.MethodPost, "/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	return decode[loginBody](t, rec)
}

func TestTaskLifecycleAcrossUsers(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/auth/register", "", `{"username":"alice","password":"hunter2!"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	registered := decode[userBody](t, rec)
	require.Equal(t, "alice", registered.Username)
	require.NotContains(t, rec.Body.String(), "password")

	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"hunter2!"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	alice := decode[loginBody](t, rec)
	require.NotEmpty(t, alice.Token)
	require.Equal(t, registered.ID, alice.User.ID)

	rec = do(t, h, http.MethodPost, "/tasks", alice.Token, `{"title":"Write report","dueDate":"2025-03-14"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[taskBody](t, rec)
	require.Equal(t, "Write report", created.Title)
	require.Equal(t, "todo", created.Status)
	require.Equal(t, alice.User.ID, created.OwnerID)
	require.NotNil(t, created.DueDate)
	require.Equal(t, "2025-03-14T00:00:00Z", *created.DueDate)

	rec = do(t, h, http.MethodGet, "/tasks", alice.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]taskBody](t, rec), 1)

	rec = do(t, h, http.MethodPut, "/tasks/"+created.ID, alice.Token, `{"status":"done"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "done", decode[taskBody](t, rec).Status)

	bob := registerAndLogin(t, h, "bob")

	rec = do(t, h, http.MethodGet, "/tasks", bob.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = do(t, h, method, "/tasks/"+created.ID, bob.Token, "")
		require.Equal(t, http.StatusNotFound, rec.Code, method)
	}
	rec = do(t, h, http.MethodPut, "/tasks/"+created.ID, bob.Token, `{"title":"mine"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/tasks/"+created.ID, alice.Token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.Bytes())

	rec = do(t, h, http.MethodGet, "/tasks/"+created.ID, alice.Token, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProtectedRoutesRequireValidToken(t *testing.T) {
	h := newTestRouter(t)
	registerAndLogin(t, h, "alice")

	past := time.Now().Add(-9 * time.Hour)
	stale, err := token.NewManager(testSecret, token.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := stale.Issue("0f8fad5b-d9cb-469f-a165-70867728950e", "alice")
	require.NoError(t, err)

	other, err := token.NewManager("some-other-secret")
	require.NoError(t, err)
	foreign, err := other.Issue("0f8fad5b-d9cb-469f-a165-70867728950e", "alice")
	require.NoError(t, err)

	headers := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic YWxpY2U6aHVudGVyMg==",
		"empty bearer": "Bearer ",
		"garbage":      "Bearer not-a-token",
		"expired":      "Bearer " + expired,
		"wrong secret": "Bearer " + foreign,
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			for _, path := range []string{"/tasks", "/auth/me"} {
				req := httptest.NewRequest(http.MethodGet, path, nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				require.Equal(t, http.StatusUnauthorized, rec.Code, path)
				require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestAuthErrors(t *testing.T) {
	h := newTestRouter(t)
	registerAndLogin(t, h, "alice")

	rec := do(t, h, http.MethodPost, "/auth/register", "", `{"username":"alice","password":"other"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/register", "", `{"username":"  ","password":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/auth/register", "", `{"username":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	wrongPassword := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"alice","password":"nope"}`)
	unknownUser := do(t, h, http.MethodPost, "/auth/login", "", `{"username":"mallory","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	require.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())

	rec = do(t, h, http.MethodPost, "/auth/login", "", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	h := newTestRouter(t)
	alice := registerAndLogin(t, h, "alice")

	rec := do(t, h, http.MethodGet, "/auth/me", alice.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	require.Equal(t, alice.User.ID, me["id"])
	require.Equal(t, "alice", me["username"])
	require.NotContains(t, me, "passwordHash")
}

func TestTaskValidationErrors(t *testing.T) {
	h := newTestRouter(t)
	alice := registerAndLogin(t, h, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"bad json", http.MethodPost, "/tasks", `{"title":`},
		{"title not a string", http.MethodPost, "/tasks", `{"title":42}`},
		{"missing title", http.MethodPost, "/tasks", `{"description":"no title"}`},
		{"blank title", http.MethodPost, "/tasks", `{"title":"   "}`},
		{"unknown status", http.MethodPost, "/tasks", `{"title":"ok","status":"blocked"}`},
		{"bad due date", http.MethodPost, "/tasks", `{"title":"ok","dueDate":"someday"}`},
		{"malformed id get", http.MethodGet, "/tasks/123", ""},
		{"malformed id put", http.MethodPut, "/tasks/123", `{"title":"x"}`},
		{"malformed id delete", http.MethodDelete, "/tasks/123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, alice.Token, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}

	rec := do(t, h, http.MethodGet, "/tasks", alice.Token, "")
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestTaskResponseShape(t *testing.T) {
	h := newTestRouter(t)
	alice := registerAndLogin(t, h, "alice")
	bob := registerAndLogin(t, h, "bob")

	rec := do(t, h, http.MethodPost, "/tasks", alice.Token, `{"title":"Undated","ownerId":"`+bob.User.ID+`","id":"not-mine"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	raw := decode[map[string]any](t, rec)
	require.Contains(t, raw, "dueDate")
	require.Nil(t, raw["dueDate"])
	require.Equal(t, alice.User.ID, raw["ownerId"])
	require.NotEqual(t, "not-mine", raw["id"])
	for _, key := range []string{"id", "title", "description", "status", "assignee", "createdAt", "updatedAt"} {
		require.Contains(t, raw, key)
	}

	id := raw["id"].(string)
	rec = do(t, h, http.MethodPut, "/tasks/"+id, alice.Token, `{"ownerId":"`+bob.User.ID+`","assignee":"bob","dueDate":"2025-06-01T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[taskBody](t, rec)
	require.Equal(t, alice.User.ID, updated.OwnerID)
	require.Equal(t, "bob", updated.Assignee)
	require.Equal(t, "Undated", updated.Title)
	require.NotNil(t, updated.DueDate)

	rec = do(t, h, http.MethodPut, "/tasks/"+id, alice.Token, `{"dueDate":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, decode[taskBody](t, rec).DueDate)

	rec = do(t, h, http.MethodGet, "/tasks", bob.Token, "")
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestExportRoute(t *testing.T) {
	objects := &memoryObjects{}
	h := newTestRouter(t, services.WithExports(objects))
	alice := registerAndLogin(t, h, "alice")

	for _, title := range []string{"one", "two"} {
		rec := do(t, h, http.MethodPost, "/tasks", alice.Token, `{"title":"`+title+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/tasks/export", alice.Token, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	export := decode[map[string]any](t, rec)
	require.EqualValues(t, 2, export["count"])

	key := export["key"].(string)
	require.True(t, strings.HasPrefix(key, "exports/"+alice.User.ID+"/"))
	require.Contains(t, objects.objects, key)

	rec = do(t, h, http.MethodPost, "/tasks/export", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("Content-Type"))
}
