package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "WRITE", OpWrite.String())
	assert.Equal(t, "REMOVE", OpRemove.String())
	assert.Equal(t, "UNKNOWN", Op(42).String())
}

func TestWatcher_Check(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "map.json")
	later := filepath.Join(dir, "later.json")
	base := time.Now().Add(-time.Hour)
	touch(t, existing, base)

	w := New([]string{existing, later, existing})
	assert.Len(t, w.Paths(), 2)
	assert.Empty(t, w.Check())

	touch(t, existing, base.Add(time.Minute))
	events := w.Check()
	require.Len(t, events, 1)
	assert.Equal(t, OpWrite, events[0].Op)
	assert.Equal(t, existing, events[0].Path)
	assert.Empty(t, w.Check())

	touch(t, later, base)
	events = w.Check()
	require.Len(t, events, 1)
	assert.Equal(t, OpCreate, events[0].Op)

	require.NoError(t, os.Remove(existing))
	events = w.Check()
	require.Len(t, events, 1)
	assert.Equal(t, OpRemove, events[0].Op)
	assert.Empty(t, w.Check())
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.json")
	touch(t, path, time.Now().Add(-time.Hour))

	w := New([]string{path}, WithInterval(10*time.Millisecond), WithDebounce(0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan []Event, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(events []Event) {
			select {
			case got <- events:
			default:
			}
		})
	}()

	touch(t, path, time.Now())

	select {
	case events := <-got:
		require.Len(t, events, 1)
		assert.Equal(t, path, events[0].Path)
		assert.Equal(t, OpWrite, events[0].Op)
	case <-ctx.Done():
		t.Fatal("no change reported")
	}

	cancel()
	<-done
}
