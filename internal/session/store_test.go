package session

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmarcinek/semantic-k/internal/db"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	database, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(context.Background(), database))
	return NewStore(database)
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	loaded, err := store.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)

	_, err = store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessageStoresMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created, err := store.CreateSession(ctx)
	require.NoError(t, err)

	message, err := store.AppendMessage(ctx, created.ID, "User", "Kim była Maria Curie?", map[string]string{"strategy": "perfect_match"})
	require.NoError(t, err)
	assert.Equal(t, "user", message.Role)
	assert.JSONEq(t, `{"strategy":"perfect_match"}`, string(message.Metadata))

	plain, err := store.AppendMessage(ctx, created.ID, "assistant", "Fizyczka.", nil)
	require.NoError(t, err)
	assert.Nil(t, plain.Metadata)

	_, err = store.AppendMessage(ctx, created.ID, "tool", "x", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = store.AppendMessage(ctx, "missing", "user", "x", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentMessagesIsChronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created, err := store.CreateSession(ctx)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := store.AppendMessage(ctx, created.ID, "user", fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
	}

	recent, err := store.RecentMessages(ctx, created.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "message 3", recent[0].Content)
	assert.Equal(t, "message 5", recent[2].Content)

	_, err = store.RecentMessages(ctx, "missing", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetSessionClearsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created, err := store.CreateSession(ctx)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, created.ID, "user", "hello", nil)
	require.NoError(t, err)

	require.NoError(t, store.ResetSession(ctx, created.ID))

	recent, err := store.RecentMessages(ctx, created.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.ErrorIs(t, store.ResetSession(ctx, "missing"), ErrNotFound)
}
