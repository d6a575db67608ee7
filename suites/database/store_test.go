package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webqa/qa-runner/suites/fixture"
)

// newStore opens the store configured by QA_DB_PATH, a fresh in-memory one by default
func newStore(t *testing.T) *fixture.Store {
	t.Helper()
	cfg, err := fixture.LoadConfig()
	require.NoError(t, err)
	if cfg.DBPath != "" {
		t.Skip("Skipping: black box store tests need an empty database, unset QA_DB_PATH")
	}
	store, err := fixture.OpenStore(context.Background(), cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateUserWithFactory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	want := fixture.NewUserFactory(0).Build()

	id, err := store.CreateUser(ctx, want)
	require.NoError(t, err)

	got, err := store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.Age, got.Age)
}

func TestCreateMultipleUsers(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, user := range fixture.NewUserFactory(0).BuildBatch(5) {
		_, err := store.CreateUser(ctx, user)
		require.NoError(t, err)
	}

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 5)

	emails := make(map[string]struct{})
	for _, user := range users {
		emails[user.Email] = struct{}{}
	}
	assert.Len(t, emails, 5, "all emails are unique")
}

func TestUserNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetUser(context.Background(), 99999)
	require.ErrorIs(t, err, fixture.ErrNotFound)
}

func TestDuplicateEmailConstraint(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	user := fixture.NewUserFactory(0).Build()

	_, err := store.CreateUser(ctx, user)
	require.NoError(t, err)

	duplicate := user
	duplicate.Name = "Someone Else"
	_, err = store.CreateUser(ctx, duplicate)
	require.ErrorIs(t, err, fixture.ErrDuplicateEmail)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
