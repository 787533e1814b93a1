package e2e_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- two devices over WebDAV ---

func TestTwoDevices_Converge(t *testing.T) {
	h := newHarness(t)
	laptop := h.newDevice(t, "laptop", "")
	phone := h.newDevice(t, "phone", "")

	laptop.addBookmark(t, "Go", "https://go.dev/")
	laptop.addBookmark(t, "Packages", "https://pkg.go.dev/")

	report := laptop.sync(t)
	assert.True(t, report.Reset, "the server file did not exist yet")
	assert.Equal(t, 2, report.Result.Server.Creates)

	status, body := h.davGet(t, davFile)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `href="https://go.dev/"`)

	phone.addBookmark(t, "News", "https://news.example.com/")
	phone.sync(t)
	laptop.sync(t)

	assert.ElementsMatch(t, lines(laptop.inspect(t)), lines(phone.inspect(t)))
	assert.Contains(t, phone.inspect(t), "- Go <https://go.dev/>")
	assert.Contains(t, laptop.inspect(t), "- News <https://news.example.com/>")

	status, _ = h.davGet(t, davFile+".lock")
	assert.Equal(t, http.StatusNotFound, status, "the lock is released after each pass")
}

func TestTwoDevices_EditsAndRemovalsPropagate(t *testing.T) {
	h := newHarness(t)
	laptop := h.newDevice(t, "laptop", "")
	phone := h.newDevice(t, "phone", "")

	goID := laptop.addBookmark(t, "Go", "https://go.dev/")
	laptop.addBookmark(t, "Blog", "https://go.dev/blog/")
	laptop.addBookmark(t, "Play", "https://go.dev/play/")
	laptop.sync(t)
	phone.sync(t)

	ctx := context.Background()
	root, err := laptop.Local.GetBookmarksTree(ctx)
	require.NoError(t, err)

	b := root.FindBookmark(goID).Copy(tree.Local).(*tree.Bookmark)
	b.Title = "The Go Programming Language"
	require.NoError(t, laptop.Local.UpdateBookmark(ctx, b))

	for _, item := range root.Children {
		if bm, ok := item.(*tree.Bookmark); ok && bm.URL == "https://go.dev/play/" {
			require.NoError(t, laptop.Local.RemoveBookmark(ctx, bm))
		}
	}

	laptop.sync(t)
	phone.sync(t)

	got := phone.inspect(t)
	assert.Contains(t, got, "- The Go Programming Language <https://go.dev/>")
	assert.NotContains(t, got, "https://go.dev/play/")
	assert.ElementsMatch(t, lines(laptop.inspect(t)), lines(got))
}

// --- encryption ---

func TestEncryptedServerFile(t *testing.T) {
	h := newHarness(t)
	laptop := h.newDevice(t, "laptop", "correct horse")
	laptop.addBookmark(t, "Secret", "https://secret.example.com/")
	laptop.sync(t)

	status, body := h.davGet(t, davFile)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(body), "secret.example.com")

	var envelope map[string]string
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.NotEmpty(t, envelope["ciphertext"])
	assert.NotEmpty(t, envelope["salt"])

	phone := h.newDevice(t, "phone", "correct horse")
	phone.sync(t)
	assert.Contains(t, phone.inspect(t), "https://secret.example.com/")

	tablet := h.newDevice(t, "tablet", "wrong")
	_, err := tablet.Account.Sync(context.Background())
	require.ErrorIs(t, err, apperrors.ErrDecryption)

	st, err := tablet.Account.Status()
	require.NoError(t, err)
	assert.Equal(t, "error", st.Outcome)

	status, _ = h.davGet(t, davFile+".lock")
	assert.Equal(t, http.StatusNotFound, status, "a failed pass releases the lock")
}

// --- MCP control endpoint ---

func TestMCP_SyncAndStatus(t *testing.T) {
	h := newHarness(t)
	laptop := h.newDevice(t, "laptop", "")
	laptop.addBookmark(t, "Go", "https://go.dev/")

	session := h.mcpSession(t, h.APIKey)

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "account_sync",
		Arguments: map[string]any{"id": "laptop", "wait": true},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractTextContent(t, result), `"outcome": "success"`)

	result, err = session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "accounts_list",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractTextContent(t, result)
	assert.Contains(t, text, `"id": "laptop"`)
	assert.Contains(t, text, "webdav")

	status, body := h.davGet(t, davFile)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "https://go.dev/")
}

// --- unauthenticated and invalid key ---

func TestUnauthenticated_Returns401(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequestWithContext(t.Context(), "POST", h.URL+"/mcp", strings.NewReader("{}"))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wwwAuth := resp.Header.Get("WWW-Authenticate")
	assert.Contains(t, wwwAuth, "Bearer")
	assert.NotContains(t, wwwAuth, `error=`, "no-token response should not include error attribute")
}

func TestInvalidKey_Returns401(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequestWithContext(t.Context(), "POST", h.URL+"/mcp", strings.NewReader("{}"))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer ms_not-a-valid-key")

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wwwAuth := resp.Header.Get("WWW-Authenticate")
	assert.Contains(t, wwwAuth, `error="invalid_token"`)
}

func TestWebDAV_RequiresCredentials(t *testing.T) {
	h := newHarness(t)

	resp, err := h.Client.Get(h.URL + "/dav/" + davFile)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// --- helpers ---

// lines splits an inspected tree. Sibling order is not compared.
func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

// extractTextContent pulls the text from the first TextContent in a
// CallToolResult. MCP tools return JSON-serialized results as TextContent.
func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content, "tool result has no content")

	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}

	t.Fatal("no TextContent found in tool result")

	return ""
}
