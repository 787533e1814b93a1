package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/alexjbarnes/marksync/internal/engine"
	"github.com/alexjbarnes/marksync/internal/resource/remote"
	"github.com/alexjbarnes/marksync/internal/resource/scoped"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"gopkg.in/yaml.v3"
)

var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// AccountsFile is the YAML document listing the accounts.
type AccountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// Account configures one local file synced with one server.
type Account struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Strategy string `yaml:"strategy"`
	// Interval between scheduled passes. Zero disables the schedule.
	Interval time.Duration `yaml:"interval"`
	// Failsafe defaults to enabled.
	Failsafe *bool  `yaml:"failsafe"`
	Local    Local  `yaml:"local"`
	Server   Server `yaml:"server"`
}

// Local is the local bookmarks file of an account.
type Local struct {
	Path string `yaml:"path"`
	// Root is a "/" separated folder path inside the file. Empty syncs the
	// whole file.
	Root string `yaml:"root"`
	// NestedSync keeps the root folders of other accounts inside Root in
	// this account's passes.
	NestedSync bool `yaml:"nested_sync"`
}

// Server is the remote side of an account. Password and passphrase may
// reference environment variables as ${NAME}.
type Server struct {
	Type        string        `yaml:"type"`
	URL         string        `yaml:"url"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Path        string        `yaml:"path"`
	Format      string        `yaml:"format"`
	Passphrase  string        `yaml:"passphrase"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// LoadAccounts reads and validates the accounts file at path. A missing
// file yields no accounts.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}

	warnInsecureFile(path)

	accounts, err := ParseAccounts(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range accounts {
		accounts[i].resolvePaths(base)
	}

	if err := checkRoots(accounts); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return accounts, nil
}

// ParseAccounts decodes and validates an accounts document.
func ParseAccounts(data []byte) ([]Account, error) {
	var doc AccountsFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing accounts: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Accounts))

	for i := range doc.Accounts {
		a := &doc.Accounts[i]

		name := a.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}

		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}

		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("account %s: duplicate id", name)
		}

		seen[a.ID] = struct{}{}
		a.Local.Root = strings.Join(scoped.SplitPath(a.Local.Root), "/")

		a.Server.Password = os.ExpandEnv(a.Server.Password)
		a.Server.Passphrase = os.ExpandEnv(a.Server.Passphrase)
	}

	if err := checkRoots(doc.Accounts); err != nil {
		return nil, err
	}

	return doc.Accounts, nil
}

// checkRoots rejects two accounts syncing the same folder of one file.
func checkRoots(accounts []Account) error {
	owner := make(map[[2]string]string, len(accounts))

	for _, a := range accounts {
		key := [2]string{a.Local.Path, a.Local.Root}
		if prev, ok := owner[key]; ok {
			return fmt.Errorf("account %s: local root %q of %s is already synced by %s", a.ID, a.Local.Root, a.Local.Path, prev)
		}

		owner[key] = a.ID
	}

	return nil
}

// OtherRoots returns the local roots of the other accounts on the same
// local file as a.
func (a *Account) OtherRoots(all []Account) []string {
	var roots []string

	for _, other := range all {
		if other.ID != a.ID && other.Local.Path == a.Local.Path {
			roots = append(roots, other.Local.Root)
		}
	}

	return roots
}

func (a *Account) validate() error {
	if !accountIDPattern.MatchString(a.ID) {
		return fmt.Errorf("id must be 1-64 letters, digits, '-' or '_'")
	}

	if _, err := engine.ParseStrategy(a.Strategy); err != nil {
		return err
	}

	if a.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}

	if a.Local.Path == "" {
		return fmt.Errorf("local.path is required")
	}

	s := a.Server

	if s.Format != "" && !serializer.Format(s.Format).Valid() {
		return fmt.Errorf("server.format %q is not one of xbel, html, json", s.Format)
	}

	if s.LockTimeout < 0 {
		return fmt.Errorf("server.lock_timeout must not be negative")
	}

	switch remote.Type(s.Type) {
	case remote.TypeWebDAV:
		if s.URL == "" {
			return fmt.Errorf("server.url is required for webdav")
		}

		if s.Path == "" {
			return fmt.Errorf("server.path is required for webdav")
		}

		if strings.HasPrefix(s.Path, "/") {
			return fmt.Errorf("server.path must be relative to server.url")
		}
	case remote.TypeFile:
		if s.Path == "" {
			return fmt.Errorf("server.path is required for file")
		}
	default:
		return fmt.Errorf("server.type must be webdav or file, got %q", s.Type)
	}

	return nil
}

// resolvePaths makes local paths relative to the accounts file absolute.
func (a *Account) resolvePaths(base string) {
	a.Local.Path = expandPath(base, a.Local.Path)

	if remote.Type(a.Server.Type) == remote.TypeFile {
		a.Server.Path = expandPath(base, a.Server.Path)
	}
}

func expandPath(base, p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}

	return filepath.Clean(p)
}

// FailsafeEnabled reports whether the mass deletion check is on.
func (a *Account) FailsafeEnabled() bool {
	return a.Failsafe == nil || *a.Failsafe
}

// SyncStrategy returns the validated strategy.
func (a *Account) SyncStrategy() engine.Strategy {
	s, _ := engine.ParseStrategy(a.Strategy)
	return s
}

// RemoteConfig converts the server section for the remote package.
func (a *Account) RemoteConfig() remote.Config {
	return remote.Config{
		Type:        remote.Type(a.Server.Type),
		URL:         a.Server.URL,
		Username:    a.Server.Username,
		Password:    a.Server.Password,
		Path:        a.Server.Path,
		Format:      serializer.Format(a.Server.Format),
		Passphrase:  a.Server.Passphrase,
		LockTimeout: a.Server.LockTimeout,
	}
}
