package localfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls until cond returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("timed out waiting for condition")
}

func openTemp(t *testing.T) *Replica {
	t.Helper()

	r, err := Open(filepath.Join(t.TempDir(), "nested", "bookmarks.json"), nil)
	require.NoError(t, err)

	return r
}

// --- Open / Flush / Reload ---

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	r := openTemp(t)

	root, err := r.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	assert.True(t, root.IsRoot)
	assert.NotEmpty(t, root.ID)
	assert.Empty(t, root.Children)

	_, err = os.Stat(r.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestFlush_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)
	root, _ := r.GetBookmarksTree(ctx)

	folderID, err := r.CreateFolder(ctx, tree.NewFolder(tree.Local, "", root.ID, "Work"))
	require.NoError(t, err)

	bmID, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", folderID, "Docs", "https://docs.example/"))
	require.NoError(t, err)
	assert.Len(t, bmID, 36, "ids are uuids")

	require.NoError(t, r.Flush(ctx))

	info, err := os.Stat(r.Path())
	require.NoError(t, err)
	assert.Equal(t, filePerm, info.Mode().Perm())

	again, err := Open(r.Path(), nil)
	require.NoError(t, err)

	got, _ := again.GetBookmarksTree(ctx)
	assert.Equal(t, root.ID, got.ID)
	assert.Equal(t, tree.Inspect(mustTree(t, r), true), tree.Inspect(got, true))
	assert.Equal(t, folderID, got.FindBookmark(bmID).ParentID)
}

func TestFlush_NoopWithoutChanges(t *testing.T) {
	r := openTemp(t)

	require.NoError(t, r.Flush(context.Background()))

	_, err := os.Stat(r.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestReload_PicksUpExternalEdits(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)
	root, _ := r.GetBookmarksTree(ctx)

	_, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "one", "https://one.example/"))
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))

	changed, err := r.Reload()
	require.NoError(t, err)
	assert.False(t, changed, "own write is not a change")

	other, err := Open(r.Path(), nil)
	require.NoError(t, err)
	otherRoot, _ := other.GetBookmarksTree(ctx)
	_, err = other.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", otherRoot.ID, "two", "https://two.example/"))
	require.NoError(t, err)
	require.NoError(t, other.Flush(ctx))

	changed, err = r.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, mustTree(t, r).Children, 2)
}

// writeExternal adds a bookmark to the file at path through a second
// replica, as another program would.
func writeExternal(t *testing.T, path, title string) {
	t.Helper()

	ctx := context.Background()

	other, err := Open(path, nil)
	require.NoError(t, err)

	root, _ := other.GetBookmarksTree(ctx)
	_, err = other.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, title, "https://"+title+".example/"))
	require.NoError(t, err)
	require.NoError(t, other.Flush(ctx))
}

func TestRefresh_DeferredWhileAnotherPassRuns(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)
	root, _ := r.GetBookmarksTree(ctx)

	_, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "one", "https://one.example/"))
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))

	writeExternal(t, r.Path(), "two")

	first := r.BeginPass()
	second := r.BeginPass()

	require.NoError(t, r.Refresh(ctx))
	assert.Len(t, mustTree(t, r).Children, 1, "tree must not be swapped under a running pass")

	second()
	second()
	first()

	first = r.BeginPass()
	require.NoError(t, r.Refresh(ctx))
	assert.Len(t, mustTree(t, r).Children, 2)
	first()
}

func TestRefresh_KeepsUnflushedChanges(t *testing.T) {
	ctx := context.Background()
	r := openTemp(t)
	root, _ := r.GetBookmarksTree(ctx)

	_, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "one", "https://one.example/"))
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))

	writeExternal(t, r.Path(), "two")

	_, err = r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "pending", "https://pending.example/"))
	require.NoError(t, err)

	require.NoError(t, r.Refresh(ctx))

	got := mustTree(t, r)
	require.Len(t, got.Children, 2)
	assert.Equal(t, "pending", got.Children[1].GetTitle())
}

func TestReload_CorruptFile(t *testing.T) {
	r := openTemp(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(r.Path()), 0o700))
	require.NoError(t, os.WriteFile(r.Path(), []byte("{not json"), 0o600))

	_, err := r.Reload()
	assert.Error(t, err)

	_, err = Open(r.Path(), nil)
	assert.Error(t, err)
}

// --- Watch ---

func TestWatch_ExternalChangeTriggers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := openTemp(t)
	root := mustTree(t, r)

	_, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "mine", "https://mine.example/"))
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))

	var calls atomic.Int32

	errCh := make(chan error, 1)

	go func() {
		errCh <- r.Watch(ctx, 30*time.Millisecond, func() { calls.Add(1) })
	}()

	t.Cleanup(func() {
		cancel()

		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("watcher error: %v", err)
		}
	})

	// Give fsnotify a moment to set up watches.
	time.Sleep(50 * time.Millisecond)

	// A flush by the replica itself is not reported.
	_, err = r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "mine2", "https://mine2.example/"))
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	other, err := Open(r.Path(), nil)
	require.NoError(t, err)
	_, err = other.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, "theirs", "https://theirs.example/"))
	require.NoError(t, err)
	require.NoError(t, other.Flush(ctx))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })
}

func mustTree(t *testing.T, r *Replica) *tree.Folder {
	t.Helper()

	root, err := r.GetBookmarksTree(context.Background())
	require.NoError(t, err)

	return root
}
