package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDisabled(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id1, err := s.Record(ctx, Entry{
		Command: 1, Value: 2, Line: "echo one",
		Stdout: "one\n", Truncated: true, StartedAt: base, FinishedAt: base.Add(time.Second),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.Record(ctx, Entry{
		Command: 2, Value: 0, Line: "false",
		ExitStatus: 1, StartedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = s.Record(ctx, Entry{
		Command: 3, Value: 0, Line: "missing-shell",
		ExitStatus: -1, Error: "start sh: not found", StartedAt: base.Add(2 * time.Minute),
	})
	require.NoError(t, err)

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "missing-shell", got[0].Line)
	assert.False(t, got[0].Succeeded())
	assert.Equal(t, id2, got[1].ID)
	assert.Equal(t, byte(2), got[1].Command)
	assert.Equal(t, 1, got[1].ExitStatus)
	assert.True(t, got[1].StartedAt.Equal(base.Add(time.Minute)))
	assert.True(t, got[1].FinishedAt.Equal(got[1].StartedAt), "finished_at defaults to started_at")

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, id1, all[2].ID)
	assert.Equal(t, "one\n", all[2].Stdout)
	assert.True(t, all[2].Succeeded())
	assert.True(t, all[2].Truncated)
	assert.False(t, all[1].Truncated)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPrune(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Entry{Command: 1, Line: "old", StartedAt: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Command: 1, Line: "new", StartedAt: time.Now()})
	require.NoError(t, err)

	removed, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Line)

	removed, err = s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestReopenKeepsEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Command: 4, Value: 1, Line: "uptime"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
