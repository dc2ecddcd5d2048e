package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/db/dbtest"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/types"
)

func newRepos(t *testing.T) (*store.UserRepository, *store.TaskRepository) {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	return store.NewUserRepository(conn, store.SQLite), store.NewTaskRepository(conn, store.SQLite)
}

func createUser(t *testing.T, users *store.UserRepository, username string) types.User {
	t.Helper()
	user, err := users.Create(context.Background(), types.User{Username: username, PasswordHash: "hash"})
	require.NoError(t, err)
	return user
}

func TestUserRepositoryCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	users, _ := newRepos(t)

	created := createUser(t, users, "alice")
	_, err := uuid.Parse(created.ID)
	require.NoError(t, err)

	byName, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, created.ID, byName.ID)
	require.Equal(t, "hash", byName.PasswordHash)

	byID, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)

	_, err = users.GetByUsername(ctx, "Alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = users.GetByID(ctx, "not-a-uuid")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserRepositoryUniqueUsername(t *testing.T) {
	users, _ := newRepos(t)
	createUser(t, users, "bob")

	_, err := users.Create(context.Background(), types.User{Username: "bob", PasswordHash: "other"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestUserRepositoryConcurrentCreate(t *testing.T) {
	users, _ := newRepos(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.Create(context.Background(), types.User{Username: "carol", PasswordHash: "hash"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, attempts-1, conflicts)
}

func TestTaskRepositoryOwnerScoping(t *testing.T) {
	ctx := context.Background()
	users, tasks := newRepos(t)
	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	due := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	created, err := tasks.Create(ctx, types.Task{
		OwnerID: alice.ID,
		Title:   "Write report",
		Status:  types.TaskStatusTodo,
		DueDate: &due,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := tasks.GetByOwner(ctx, alice.ID, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Write report", got.Title)
	require.Equal(t, alice.ID, got.OwnerID)
	require.NotNil(t, got.DueDate)
	require.True(t, due.Equal(*got.DueDate))

	_, err = tasks.GetByOwner(ctx, bob.ID, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	title := "stolen"
	_, err = tasks.UpdateByOwner(ctx, bob.ID, created.ID, types.TaskPatch{Title: &title})
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, tasks.DeleteByOwner(ctx, bob.ID, created.ID), store.ErrNotFound)

	bobTasks, err := tasks.ListByOwner(ctx, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, bobTasks)
	require.Empty(t, bobTasks)

	aliceTasks, err := tasks.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceTasks, 1)
	require.Equal(t, "Write report", aliceTasks[0].Title)
}

func TestTaskRepositoryUpdatePatch(t *testing.T) {
	ctx := context.Background()
	users, tasks := newRepos(t)
	owner := createUser(t, users, "dave")

	due := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	created, err := tasks.Create(ctx, types.Task{
		OwnerID:     owner.ID,
		Title:       "Original",
		Description: "keep me",
		Status:      types.TaskStatusTodo,
		DueDate:     &due,
	})
	require.NoError(t, err)

	status := types.TaskStatusDone
	updated, err := tasks.UpdateByOwner(ctx, owner.ID, created.ID, types.TaskPatch{Status: &status})
	require.NoError(t, err)
	require.Equal(t, types.TaskStatusDone, updated.Status)
	require.Equal(t, "Original", updated.Title)
	require.Equal(t, "keep me", updated.Description)
	require.NotNil(t, updated.DueDate)
	require.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	cleared, err := tasks.UpdateByOwner(ctx, owner.ID, created.ID, types.TaskPatch{ClearDueDate: true})
	require.NoError(t, err)
	require.Nil(t, cleared.DueDate)
	require.Equal(t, owner.ID, cleared.OwnerID)

	require.NoError(t, tasks.DeleteByOwner(ctx, owner.ID, created.ID))
	_, err = tasks.GetByOwner(ctx, owner.ID, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, tasks.DeleteByOwner(ctx, owner.ID, created.ID), store.ErrNotFound)
}

func TestTaskRepositoryMalformedIDs(t *testing.T) {
	ctx := context.Background()
	_, tasks := newRepos(t)

	_, err := tasks.GetByOwner(ctx, uuid.NewString(), "123")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := tasks.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, list)
}
