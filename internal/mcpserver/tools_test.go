package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/marksync/internal/account"
	"github.com/alexjbarnes/marksync/internal/resource/memory"
	"github.com/alexjbarnes/marksync/internal/state"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer is an in-memory server adapter accepting http(s) bookmarks.
type testServer struct {
	*memory.Tree
}

func (s *testServer) Label() string { return "memory" }

func (s *testServer) AcceptsBookmark(b *tree.Bookmark) bool {
	return len(b.URL) > 4 && b.URL[:4] == "http"
}

type fixture struct {
	session *mcp.ClientSession
	store   *state.State
	local   *memory.Tree
	server  *testServer
}

// testSetup builds one account syncing a local tree with two bookmarks
// against an empty server, registers the tools on an MCP server, and
// returns a connected client session.
func testSetup(t *testing.T) *fixture {
	t.Helper()

	store, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	local := memory.New(tree.Local, tree.NewRoot(tree.Local, "0",
		tree.NewBookmark(tree.Local, "1", "0", "Go", "https://go.dev/"),
		tree.NewBookmark(tree.Local, "2", "0", "Notes", "file:///home/notes.txt"),
	))
	server := &testServer{Tree: memory.New(tree.Server, nil)}

	c := account.NewController(nil)
	require.NoError(t, c.Add(account.New(account.Options{ID: "laptop", Label: "Laptop"}, local, server, store, nil, nil), nil))

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "marksync-mcp-test", Version: "test"},
		nil,
	)
	RegisterTools(mcpServer, c)

	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	_, err = mcpServer.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(
		&mcp.Implementation{Name: "test-client", Version: "test"},
		nil,
	)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return &fixture{session: session, store: store, local: local, server: server}
}

// callTool is a helper that calls a tool and returns the result.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	return result
}

// extractJSON unmarshals the first text content from a CallToolResult.
func extractJSON(t *testing.T, result *mcp.CallToolResult, dest interface{}) {
	t.Helper()
	require.NotEmpty(t, result.Content, "result has no content")
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "first content is not TextContent")
	require.NoError(t, json.Unmarshal([]byte(tc.Text), dest))
}

// --- accounts_list / account_status ---

func TestAccountsList(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "accounts_list", nil)
	assert.False(t, result.IsError)

	var out ListResult
	extractJSON(t, result, &out)
	require.Len(t, out.Accounts, 1)
	assert.Equal(t, "laptop", out.Accounts[0].ID)
	assert.Equal(t, "Laptop", out.Accounts[0].Label)
	assert.Equal(t, "memory", out.Accounts[0].Server)
	assert.Equal(t, "idle", out.Accounts[0].Phase)
	assert.Empty(t, out.Accounts[0].LastSync)
}

func TestAccountStatus_Unknown(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "account_status", map[string]interface{}{"id": "nope"})
	// Errors from ToolHandlerFor are returned as tool errors (IsError=true),
	// not protocol errors.
	assert.True(t, result.IsError)
}

// --- account_sync ---

func TestAccountSync_Wait(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "account_sync", map[string]interface{}{"id": "laptop", "wait": true})
	assert.False(t, result.IsError)

	var out SyncResult
	extractJSON(t, result, &out)
	assert.True(t, out.Started)
	assert.Equal(t, "success", out.Outcome)
	assert.Equal(t, "merge", out.Mode)
	assert.Equal(t, 1, out.Server.Creates, "only the accepted bookmark is sent")

	root, err := f.server.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	require.Len(t, root.Children, 1)

	status := callTool(t, f.session, "account_status", map[string]interface{}{"id": "laptop"})

	var st StatusResult
	extractJSON(t, status, &st)
	assert.Equal(t, "success", st.Outcome)
	assert.NotEmpty(t, st.LastSync)
}

func TestAccountSync_Unknown(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "account_sync", map[string]interface{}{"id": "nope"})
	assert.True(t, result.IsError)
}

// --- account_cancel ---

func TestAccountCancel_Idle(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "account_cancel", map[string]interface{}{"id": "laptop"})
	assert.False(t, result.IsError)

	var out CancelResult
	extractJSON(t, result, &out)
	assert.False(t, out.Cancelled)
}

// --- account_diff ---

func TestAccountDiff(t *testing.T) {
	f := testSetup(t)

	result := callTool(t, f.session, "account_diff", map[string]interface{}{"id": "laptop"})
	assert.False(t, result.IsError)

	var out DiffResult
	extractJSON(t, result, &out)
	assert.Equal(t, "merge", out.Mode)
	assert.Equal(t, 1, out.Server.Creates)
	assert.Contains(t, out.ServerDiff, "+   - Go <https://go.dev/>")
	assert.Empty(t, out.LocalDiff)

	root, err := f.server.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	assert.Empty(t, root.Children, "diff must not modify the server")
}

// --- bookmark_accounts ---

func TestBookmarkAccounts(t *testing.T) {
	f := testSetup(t)

	tests := []struct {
		localID string
		want    []string
	}{
		{"1", []string{"laptop"}},
		{"2", []string{}},
		{"missing", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.localID, func(t *testing.T) {
			result := callTool(t, f.session, "bookmark_accounts", map[string]interface{}{"local_id": tt.localID})
			assert.False(t, result.IsError)

			var out TracksResult
			extractJSON(t, result, &out)
			assert.Equal(t, tt.want, out.Accounts)
		})
	}
}

func TestBookmarkAccounts_ServerIDAfterSync(t *testing.T) {
	f := testSetup(t)

	var before TracksResult
	extractJSON(t, callTool(t, f.session, "bookmark_accounts", map[string]interface{}{"local_id": "1"}), &before)
	assert.Equal(t, []string{"laptop"}, before.Accounts)
	assert.Empty(t, before.Server, "not synced yet")

	result := callTool(t, f.session, "account_sync", map[string]interface{}{"id": "laptop", "wait": true})
	require.False(t, result.IsError)

	root, err := f.server.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	require.Len(t, root.Children, 1)

	var after TracksResult
	extractJSON(t, callTool(t, f.session, "bookmark_accounts", map[string]interface{}{"local_id": "1"}), &after)
	require.Contains(t, after.Server, "laptop")
	assert.Equal(t, root.Children[0].GetID(), after.Server["laptop"].ServerID)
}
