package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records uploads of the bookmarks file.
type countingStore struct {
	Store
	mu   sync.Mutex
	puts map[string]int
}

func (c *countingStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	c.mu.Lock()
	c.puts[name]++
	c.mu.Unlock()

	return c.Store.Put(ctx, name, data, contentType)
}

func (c *countingStore) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.puts[name]
}

func newDirAdapter(t *testing.T, dir string, cfg Config) (*Adapter, *countingStore) {
	t.Helper()

	store := &countingStore{Store: NewDir(dir), puts: map[string]int{}}
	cfg.Type = TypeFile

	return NewWithStore(store, "bookmarks.xbel", cfg, nil), store
}

func addBookmark(t *testing.T, a *Adapter, title, url string) string {
	t.Helper()

	id, err := a.CreateBookmark(context.Background(), tree.NewBookmark(tree.Server, "", serializer.RootID, title, url))
	require.NoError(t, err)

	return id
}

// --- Sync hooks ---

func TestOnSyncStart_MissingFile(t *testing.T) {
	a, _ := newDirAdapter(t, t.TempDir(), Config{})

	found, err := a.OnSyncStart(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	root, err := a.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	assert.Empty(t, root.Children)

	require.NoError(t, a.OnSyncFail(context.Background()))
}

func TestSyncRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, store := newDirAdapter(t, dir, Config{})
	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)

	addBookmark(t, a, "Example", "https://example.com/")
	require.NoError(t, a.OnSyncComplete(ctx))
	assert.Equal(t, 1, store.count("bookmarks.xbel"))

	_, err = os.Stat(filepath.Join(dir, "bookmarks.xbel.lock"))
	assert.True(t, os.IsNotExist(err), "lock file must be removed")

	b, _ := newDirAdapter(t, dir, Config{})
	found, err := b.OnSyncStart(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	root, err := b.GetBookmarksTree(ctx)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "Example", root.Children[0].GetTitle())
	assert.Equal(t, tree.Server, root.Children[0].GetLocation())

	require.NoError(t, b.OnSyncComplete(ctx))
}

func TestSync_DeletedIDsAreNotReusedByLaterClients(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, _ := newDirAdapter(t, dir, Config{})
	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)

	keep := addBookmark(t, a, "keep", "https://keep.example/")
	gone := addBookmark(t, a, "gone", "https://gone.example/")
	require.NoError(t, a.OnSyncComplete(ctx))

	_, err = a.OnSyncStart(ctx)
	require.NoError(t, err)

	root, err := a.GetBookmarksTree(ctx)
	require.NoError(t, err)
	require.NoError(t, a.RemoveBookmark(ctx, root.FindBookmark(gone)))
	require.NoError(t, a.OnSyncComplete(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "bookmarks.xbel"))
	require.NoError(t, err)
	assert.Equal(t, 2, serializer.HighestID(serializer.FormatXBEL, data))

	// A fresh client only knows the file, which no longer holds the id.
	b, _ := newDirAdapter(t, dir, Config{})
	_, err = b.OnSyncStart(ctx)
	require.NoError(t, err)

	id := addBookmark(t, b, "new", "https://new.example/")
	assert.NotEqual(t, gone, id)
	assert.NotEqual(t, keep, id)
	assert.Equal(t, "3", id)
	require.NoError(t, b.OnSyncComplete(ctx))
}

func TestOnSyncComplete_SkipsUploadWithoutChanges(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, store := newDirAdapter(t, dir, Config{})
	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)
	addBookmark(t, a, "x", "https://x.example/")
	require.NoError(t, a.OnSyncComplete(ctx))
	require.Equal(t, 1, store.count("bookmarks.xbel"))

	_, err = a.OnSyncStart(ctx)
	require.NoError(t, err)
	require.NoError(t, a.OnSyncComplete(ctx))
	assert.Equal(t, 1, store.count("bookmarks.xbel"))
}

func TestOnSyncComplete_EmptyFileIsCreated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, _ := newDirAdapter(t, dir, Config{})
	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)
	require.NoError(t, a.OnSyncComplete(ctx))

	_, err = os.Stat(filepath.Join(dir, "bookmarks.xbel"))
	assert.NoError(t, err)
}

func TestOnSyncStart_ParseErrorReleasesLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bookmarks.xbel"), []byte("<xbel><folder>"), 0o600))

	a, _ := newDirAdapter(t, dir, Config{})
	_, err := a.OnSyncStart(ctx)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "bookmarks.xbel.lock"))
	assert.True(t, os.IsNotExist(statErr))
}

// --- Lock file ---

func TestLock_ForeignFreshLockRefuses(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, _ := newDirAdapter(t, dir, Config{})
	b, _ := newDirAdapter(t, dir, Config{})

	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)

	_, err = b.OnSyncStart(ctx)
	require.ErrorIs(t, err, apperrors.ErrLockFile)

	require.NoError(t, a.OnSyncComplete(ctx))

	_, err = b.OnSyncStart(ctx)
	require.NoError(t, err)
	require.NoError(t, b.OnSyncFail(ctx))
}

func TestLock_StaleLockIsOverridden(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stale, err := json.Marshal(lockFile{Token: "someone-else", Refreshed: time.Now().Add(-time.Hour).UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bookmarks.xbel.lock"), stale, 0o600))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "bookmarks.xbel.lock"), old, old))

	a, _ := newDirAdapter(t, dir, Config{LockTimeout: time.Minute})
	_, err = a.OnSyncStart(ctx)
	require.NoError(t, err)
	require.NoError(t, a.OnSyncFail(ctx))
}

func TestLock_AgeFromClock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, _ := newDirAdapter(t, dir, Config{LockTimeout: time.Minute})
	b, _ := newDirAdapter(t, dir, Config{LockTimeout: time.Minute})

	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)
	defer a.OnSyncFail(ctx)

	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = b.OnSyncStart(ctx)
	require.NoError(t, err)
	require.NoError(t, b.OnSyncFail(ctx))
}

func TestParseLock(t *testing.T) {
	mod := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := mod.Add(time.Hour)

	tests := []struct {
		name      string
		data      string
		wantToken string
		wantTime  time.Time
	}{
		{"foreign content", "locked", "", mod},
		{"ours", `{"token":"abc","refreshed":"` + later.Format(time.RFC3339Nano) + `"}`, "abc", later},
		{"older refresh keeps mtime", `{"token":"abc","refreshed":"2020-01-01T00:00:00Z"}`, "abc", mod},
		{"no refresh", `{"token":"abc"}`, "abc", mod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, refreshed := parseLock([]byte(tt.data), mod)
			assert.Equal(t, tt.wantToken, token)
			assert.True(t, tt.wantTime.Equal(refreshed), "got %s", refreshed)
		})
	}
}

// --- Encryption ---

func TestEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, _ := newDirAdapter(t, dir, Config{Passphrase: "correct horse"})
	_, err := a.OnSyncStart(ctx)
	require.NoError(t, err)
	addBookmark(t, a, "Secret", "https://secret.example/")
	require.NoError(t, a.OnSyncComplete(ctx))

	raw, err := os.ReadFile(filepath.Join(dir, "bookmarks.xbel"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret.example")
	assert.Contains(t, string(raw), `"ciphertext"`)

	b, _ := newDirAdapter(t, dir, Config{Passphrase: "correct horse"})
	_, err = b.OnSyncStart(ctx)
	require.NoError(t, err)

	root, _ := b.GetBookmarksTree(ctx)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "https://secret.example/", root.Children[0].(*tree.Bookmark).URL)
	require.NoError(t, b.OnSyncFail(ctx))

	c, _ := newDirAdapter(t, dir, Config{Passphrase: "wrong"})
	_, err = c.OnSyncStart(ctx)
	require.ErrorIs(t, err, apperrors.ErrDecryption)
}

func TestDecrypt_PlainDocumentPassesThrough(t *testing.T) {
	plain := []byte(`<?xml version="1.0" encoding="UTF-8"?><xbel version="1.0"></xbel>`)

	got, err := decrypt("pass", plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	_, err = decrypt("pass", []byte("garbage"))
	require.ErrorIs(t, err, apperrors.ErrDecryption)

	_, err = decrypt("pass", []byte(`{"salt":"00"}`))
	require.ErrorIs(t, err, apperrors.ErrDecryption)
}

func TestDeriveKey_NormalizesInput(t *testing.T) {
	composed, err := deriveKey("caf\u00e9", "salt")
	require.NoError(t, err)

	decomposed, err := deriveKey("cafe\u0301", "salt")
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
	assert.Len(t, composed, scryptKeyLen)
}

// --- AcceptsBookmark ---

func TestAcceptsBookmark(t *testing.T) {
	a, _ := newDirAdapter(t, t.TempDir(), Config{})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/", true},
		{"http://example.com/", true},
		{"ftp://files.example.com/", true},
		{"javascript:alert(1)", true},
		{"chrome://settings", true},
		{"data:text/plain,hi", true},
		{"data:", false},
		{"file:///etc/passwd", false},
		{"place:sort=8", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, a.AcceptsBookmark(tree.NewBookmark(tree.Local, "1", "0", "t", tt.url)))
		})
	}
}

// --- Construction ---

func TestNew(t *testing.T) {
	_, err := New(Config{Type: TypeWebDAV, URL: "https://dav.example.com/", Path: "/abs.xbel"}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Type: TypeWebDAV, URL: "https://dav.example.com/"}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Type: "ftp", Path: "x"}, nil, nil)
	assert.Error(t, err)

	a, err := New(Config{Type: TypeFile, Path: filepath.Join(t.TempDir(), "b.html"), Format: serializer.FormatHTML}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, a.Label(), "b.html")
	assert.True(t, a.PreservesOrder())
}

// --- WebDAV ---

// davServer is a minimal WebDAV file server with basic auth.
type davServer struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (d *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "alice" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/dav/")

	switch r.Method {
	case http.MethodGet:
		data, ok := d.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		_, _ = w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		d.files[name] = data
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := d.files[name]; !ok {
			http.NotFound(w, r)
			return
		}

		delete(d.files, name)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestWebDAV_SyncRoundTrip(t *testing.T) {
	ctx := context.Background()
	dav := &davServer{files: map[string][]byte{}}
	srv := httptest.NewServer(dav)
	t.Cleanup(srv.Close)

	cfg := Config{Type: TypeWebDAV, URL: srv.URL + "/dav", Username: "alice", Password: "secret", Path: "bookmarks.json", Format: serializer.FormatJSON}

	a, err := New(cfg, nil, srv.Client())
	require.NoError(t, err)

	found, err := a.OnSyncStart(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	dav.mu.Lock()
	_, locked := dav.files["bookmarks.json.lock"]
	dav.mu.Unlock()
	assert.True(t, locked)

	addBookmark(t, a, "Go", "https://go.dev/")
	require.NoError(t, a.OnSyncComplete(ctx))

	dav.mu.Lock()
	_, locked = dav.files["bookmarks.json.lock"]
	body := string(dav.files["bookmarks.json"])
	dav.mu.Unlock()

	assert.False(t, locked)
	assert.Contains(t, body, "https://go.dev/")

	b, err := New(cfg, nil, srv.Client())
	require.NoError(t, err)

	found, err = b.OnSyncStart(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, b.OnSyncFail(ctx))
}

func TestWebDAV_AuthenticationError(t *testing.T) {
	srv := httptest.NewServer(&davServer{files: map[string][]byte{}})
	t.Cleanup(srv.Close)

	a, err := New(Config{Type: TypeWebDAV, URL: srv.URL + "/dav/", Username: "alice", Password: "nope", Path: "b.xbel"}, nil, srv.Client())
	require.NoError(t, err)

	_, err = a.OnSyncStart(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestWebDAV_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom\x00\x1b[31m"))
	}))
	t.Cleanup(srv.Close)

	dav, err := NewWebDAV(srv.URL, "", "", srv.Client())
	require.NoError(t, err)

	_, _, err = dav.Get(context.Background(), "b.xbel")
	require.ErrorIs(t, err, apperrors.ErrRemoteResponse)
	assert.NotContains(t, err.Error(), "\x1b")
}

func TestNormalizeBaseURL(t *testing.T) {
	got, err := normalizeBaseURL("https://dav.example.com/remote.php/webdav")
	require.NoError(t, err)
	assert.Equal(t, "https://dav.example.com/remote.php/webdav/", got)

	_, err = normalizeBaseURL("ftp://dav.example.com/")
	assert.Error(t, err)
}

// --- Dir store ---

func TestDir_RejectsEscapingPaths(t *testing.T) {
	d := NewDir(t.TempDir())

	err := d.Put(context.Background(), "../outside", []byte("x"), "")
	assert.Error(t, err)
}

func TestDir_DeleteMissingIsNoop(t *testing.T) {
	d := NewDir(t.TempDir())
	assert.NoError(t, d.Delete(context.Background(), "missing"))
}
