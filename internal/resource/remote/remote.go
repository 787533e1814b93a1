// Package remote implements server adapters that keep the whole bookmark
// tree in a single file, on a WebDAV share or in a local directory. The file
// is pulled into an in-memory tree when a pass starts and pushed back when
// it completes. A lock file next to it keeps two devices from syncing the
// same file at once.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/resource/memory"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Type selects the storage behind an adapter.
type Type string

const (
	TypeWebDAV Type = "webdav"
	TypeFile   Type = "file"
)

// DefaultLockTimeout is how long a lock file is honored after it was last
// refreshed.
const DefaultLockTimeout = 15 * time.Minute

// acceptedSchemes lists the URL schemes a bookmarks file can hold.
var acceptedSchemes = map[string]bool{
	"http":       true,
	"https":      true,
	"ftp":        true,
	"data":       true,
	"javascript": true,
	"chrome":     true,
}

// Config describes one remote bookmarks file.
type Config struct {
	Type Type
	// URL is the WebDAV collection holding the file.
	URL      string
	Username string
	Password string
	// Path is relative to URL for WebDAV and a filesystem path for TypeFile.
	Path       string
	Format     serializer.Format
	Passphrase string
	// LockTimeout defaults to DefaultLockTimeout.
	LockTimeout time.Duration
}

// Adapter is a resource.Adapter backed by a single remote file.
type Adapter struct {
	*memory.Tree

	store  Store
	name   string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	lockToken   string
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
	initialHash string
}

// New builds an adapter for cfg. httpClient may be nil.
func New(cfg Config, logger *slog.Logger, httpClient *http.Client) (*Adapter, error) {
	switch cfg.Type {
	case TypeWebDAV:
		if strings.HasPrefix(cfg.Path, "/") {
			return nil, fmt.Errorf("webdav path %q must be relative to the server url", cfg.Path)
		}

		if cfg.Path == "" {
			return nil, fmt.Errorf("webdav path is required")
		}

		dav, err := NewWebDAV(cfg.URL, cfg.Username, cfg.Password, httpClient)
		if err != nil {
			return nil, err
		}

		return NewWithStore(dav, cfg.Path, cfg, logger), nil
	case TypeFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path is required")
		}

		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", cfg.Path, err)
		}

		return NewWithStore(NewDir(filepath.Dir(abs)), filepath.Base(abs), cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown server type %q", apperrors.ErrUnsupportedScheme, cfg.Type)
	}
}

// NewWithStore builds an adapter for the file name inside store.
func NewWithStore(store Store, name string, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.Format == "" {
		cfg.Format = serializer.FormatXBEL
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Adapter{
		Tree:   memory.New(tree.Server, nil),
		store:  store,
		name:   name,
		cfg:    cfg,
		logger: logger.With(slog.String("remote", store.Location()+"/"+name)),
		now:    time.Now,
	}
}

// Label implements resource.Adapter.
func (a *Adapter) Label() string {
	return fmt.Sprintf("%s %s/%s", a.cfg.Type, strings.TrimSuffix(a.store.Location(), "/"), a.name)
}

// AcceptsBookmark implements resource.Adapter.
func (a *Adapter) AcceptsBookmark(b *tree.Bookmark) bool {
	if strings.EqualFold(strings.TrimSpace(b.URL), "data:") {
		return false
	}

	u, err := url.Parse(b.URL)
	if err != nil {
		return false
	}

	return acceptedSchemes[strings.ToLower(u.Scheme)]
}

// OnSyncStart takes the lock and loads the remote file. It returns false
// when the file does not exist, leaving the tree empty.
func (a *Adapter) OnSyncStart(ctx context.Context) (bool, error) {
	if err := a.acquireLock(ctx); err != nil {
		return false, err
	}

	found, err := a.pull(ctx)
	if err != nil {
		a.releaseLock(ctx)
		return false, err
	}

	return found, nil
}

// OnSyncComplete uploads the tree when the pass changed it and frees the
// lock.
func (a *Adapter) OnSyncComplete(ctx context.Context) error {
	defer a.releaseLock(ctx)

	return a.push(ctx)
}

// OnSyncFail frees the lock without uploading.
func (a *Adapter) OnSyncFail(ctx context.Context) error {
	a.releaseLock(ctx)

	return nil
}

func (a *Adapter) pull(ctx context.Context) (bool, error) {
	data, _, err := a.store.Get(ctx, a.name)
	if errors.Is(err, errNotFound) {
		a.logger.Info("remote: bookmarks file missing, starting empty")
		a.Replace(nil)
		a.setInitialHash("")

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("downloading bookmarks: %w", err)
	}

	if a.cfg.Passphrase != "" {
		data, err = decrypt(a.cfg.Passphrase, data)
		if err != nil {
			return false, err
		}
	}

	doc, err := serializer.Decode(a.cfg.Format, data, tree.Server)
	if err != nil {
		return false, err
	}

	root := doc.Root

	a.Replace(root)
	a.SeedHighest(doc.HighestID)
	a.setInitialHash(root.Hash(true))

	a.logger.Debug("remote: bookmarks loaded",
		slog.Int("bookmarks", root.Count()-root.CountFolders()),
		slog.Int("folders", root.CountFolders()),
	)

	return true, nil
}

func (a *Adapter) push(ctx context.Context) error {
	root, _ := a.GetBookmarksTree(ctx)

	a.mu.Lock()
	initial := a.initialHash
	a.mu.Unlock()

	hash := root.Hash(true)
	if hash == initial {
		a.logger.Debug("remote: no changes to upload")
		return nil
	}

	data, err := serializer.Encode(a.cfg.Format, serializer.Document{Root: root, HighestID: a.Highest()})
	if err != nil {
		return fmt.Errorf("encoding bookmarks: %w", err)
	}

	contentType := contentTypes[a.cfg.Format]

	if a.cfg.Passphrase != "" {
		data, err = encrypt(a.cfg.Passphrase, data)
		if err != nil {
			return fmt.Errorf("encrypting bookmarks: %w", err)
		}

		contentType = "application/json"
	}

	if err := a.store.Put(ctx, a.name, data, contentType); err != nil {
		return fmt.Errorf("uploading bookmarks: %w", err)
	}

	a.setInitialHash(hash)
	a.logger.Info("remote: bookmarks uploaded", slog.Int("bytes", len(data)))

	return nil
}

var contentTypes = map[serializer.Format]string{
	serializer.FormatXBEL: "application/xml",
	serializer.FormatHTML: "text/html",
	serializer.FormatJSON: "application/json",
}

func (a *Adapter) setInitialHash(h string) {
	a.mu.Lock()
	a.initialHash = h
	a.mu.Unlock()
}

// --- Lock file ---

type lockFile struct {
	Token     string    `json:"token"`
	Refreshed time.Time `json:"refreshed"`
}

func (a *Adapter) lockName() string {
	return a.name + ".lock"
}

// acquireLock writes the lock file unless another device holds a lock that
// has not timed out, and starts refreshing it.
func (a *Adapter) acquireLock(ctx context.Context) error {
	data, modTime, err := a.store.Get(ctx, a.lockName())

	switch {
	case errors.Is(err, errNotFound):
	case err != nil:
		return fmt.Errorf("reading lock file: %w", err)
	default:
		token, refreshed := parseLock(data, modTime)

		a.mu.Lock()
		ours := token != "" && token == a.lockToken
		a.mu.Unlock()

		age := a.now().Sub(refreshed)
		if !ours && age < a.cfg.LockTimeout {
			return fmt.Errorf("%w: %s locked %s ago", apperrors.ErrLockFile, a.lockName(), age.Round(time.Second))
		}

		if !ours {
			a.logger.Warn("remote: overriding stale lock", slog.String("age", age.Round(time.Second).String()))
		}
	}

	token := uuid.NewString()
	if err := a.writeLock(ctx, token); err != nil {
		return err
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	a.mu.Lock()
	a.lockToken = token
	a.stopRefresh = cancel
	a.refreshDone = done
	a.mu.Unlock()

	go a.refreshLock(refreshCtx, token, done)

	return nil
}

func (a *Adapter) writeLock(ctx context.Context, token string) error {
	data, err := json.Marshal(lockFile{Token: token, Refreshed: a.now().UTC()})
	if err != nil {
		return err
	}

	if err := a.store.Put(ctx, a.lockName(), data, "application/json"); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}

	return nil
}

// refreshLock rewrites the lock file until ctx is done so long passes do
// not let it go stale.
func (a *Adapter) refreshLock(ctx context.Context, token string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.cfg.LockTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.writeLock(ctx, token); err != nil && ctx.Err() == nil {
				a.logger.Warn("remote: refreshing lock failed", slog.String("error", err.Error()))
			}
		}
	}
}

// releaseLock stops the refresher and deletes the lock file. Failures are
// logged; a leftover lock times out on its own.
func (a *Adapter) releaseLock(ctx context.Context) {
	a.mu.Lock()
	stop, done, token := a.stopRefresh, a.refreshDone, a.lockToken
	a.stopRefresh, a.refreshDone, a.lockToken = nil, nil, ""
	a.mu.Unlock()

	if token == "" {
		return
	}

	stop()
	<-done

	if err := a.store.Delete(context.WithoutCancel(ctx), a.lockName()); err != nil {
		a.logger.Warn("remote: removing lock file failed", slog.String("error", err.Error()))
	}
}

// parseLock reads the token and refresh time of a lock file. Lock files
// written by other clients may hold anything; their age then comes from the
// modification time.
func parseLock(data []byte, modTime time.Time) (string, time.Time) {
	if !gjson.ValidBytes(data) {
		return "", modTime
	}

	token := gjson.GetBytes(data, "token").String()

	refreshed := modTime
	if r := gjson.GetBytes(data, "refreshed"); r.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, r.String()); err == nil && t.After(refreshed) {
			refreshed = t
		}
	}

	return token, refreshed
}
