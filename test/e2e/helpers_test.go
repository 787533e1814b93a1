package e2e_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/marksync/internal/account"
	"github.com/alexjbarnes/marksync/internal/auth"
	"github.com/alexjbarnes/marksync/internal/mcpserver"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/resource/localfile"
	"github.com/alexjbarnes/marksync/internal/resource/remote"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"github.com/alexjbarnes/marksync/internal/server"
	"github.com/alexjbarnes/marksync/internal/state"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"
)

const (
	davUser     = "testuser"
	davPassword = "testpass"
	davFile     = "bookmarks.xbel"
	apiUser     = "tester"
)

// harness holds the full e2e stack: a WebDAV server with basic auth, the
// MCP control endpoint behind API key auth, a state database and the
// accounts registered with the controller.
type harness struct {
	URL        string
	Client     *http.Client
	APIKey     string
	State      *state.State
	Controller *account.Controller
	Locks      *resource.RootLocks
	dir        string
}

// newHarness serves an in-memory WebDAV tree under /dav/ next to the MCP
// endpoint of server.NewMux and starts an httptest server.
func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	st, err := state.LoadAt(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	controller := account.NewController(logger)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "marksync-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, controller)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	key := auth.GenerateAPIKey()

	mux := server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeys(map[string]string{apiUser: key}),
		MCPHandler: mcpHandler,
		Logger:     logger,
	})
	mux.Handle("/dav/", basicAuth(&webdav.Handler{
		Prefix:     "/dav",
		FileSystem: webdav.NewMemFS(),
		LockSystem: webdav.NewMemLS(),
	}))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &harness{
		URL:        ts.URL,
		Client:     ts.Client(),
		APIKey:     key,
		State:      st,
		Controller: controller,
		Locks:      resource.NewRootLocks(),
		dir:        dir,
	}
}

func basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != davUser || pass != davPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="dav"`)
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// device is one machine: a local bookmarks file and the account syncing
// it with the WebDAV server.
type device struct {
	Local   *localfile.Replica
	Account *account.Account
}

// newDevice registers account id with its own local file. passphrase may
// be empty.
func (h *harness) newDevice(t *testing.T, id, passphrase string) *device {
	t.Helper()

	local, err := localfile.Open(filepath.Join(h.dir, id, "bookmarks.json"), nil)
	require.NoError(t, err)

	srv, err := remote.New(remote.Config{
		Type:       remote.TypeWebDAV,
		URL:        h.URL + "/dav",
		Username:   davUser,
		Password:   davPassword,
		Path:       davFile,
		Format:     serializer.FormatXBEL,
		Passphrase: passphrase,
	}, nil, h.Client)
	require.NoError(t, err)

	acct := account.New(account.Options{
		ID:                id,
		Strategy:          "default",
		Failsafe:          true,
		FailsafeThreshold: 0.5,
		Concurrency:       4,
	}, local, srv, h.State, h.Locks, nil)
	require.NoError(t, h.Controller.Add(acct, nil))

	return &device{Local: local, Account: acct}
}

// addBookmark creates a bookmark in the local root of d.
func (d *device) addBookmark(t *testing.T, title, url string) string {
	t.Helper()

	ctx := context.Background()

	root, err := d.Local.GetBookmarksTree(ctx)
	require.NoError(t, err)

	id, err := d.Local.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", root.ID, title, url))
	require.NoError(t, err)

	return id
}

// sync runs one pass and requires it to succeed.
func (d *device) sync(t *testing.T) *account.Report {
	t.Helper()

	report, err := d.Account.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, account.OutcomeSuccess, report.Outcome)

	return report
}

// inspect renders the local tree without ids.
func (d *device) inspect(t *testing.T) string {
	t.Helper()

	root, err := d.Local.GetBookmarksTree(context.Background())
	require.NoError(t, err)

	return tree.Inspect(root, false)
}

// davGet fetches a raw file from the WebDAV server.
func (h *harness) davGet(t *testing.T, name string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, h.URL+"/dav/"+name, nil)
	require.NoError(t, err)

	req.SetBasicAuth(davUser, davPassword)

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

// mcpSession creates an MCP client session authenticated with the given
// Bearer token. Uses the MCP SDK's StreamableClientTransport with a
// custom HTTP RoundTripper that injects the Authorization header.
func (h *harness) mcpSession(t *testing.T, token string) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint: h.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &bearerTransport{
				token: token,
				base:  h.Client.Transport,
			},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	session, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

// bearerTransport is an http.RoundTripper that injects a Bearer token
// into every request's Authorization header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (bt *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bt.token)

	return bt.base.RoundTrip(req)
}
