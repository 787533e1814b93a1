package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *State {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const testAccount = "account-test-001"

// --- LoadAt / Close ---

func TestLoadAt_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "state.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestLoadAt_ReopensExistingDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.SetAccountData(testAccount, AccountData{Strategy: "slave"}))
	require.NoError(t, s1.Close())

	s2, err := LoadAt(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	data, err := s2.GetAccountData(testAccount)
	require.NoError(t, err)
	assert.Equal(t, "slave", data.Strategy)
}

// --- Accounts ---

func TestInitAccount_CreatesEmptyState(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.InitAccount(testAccount))

	m, err := s.GetMappings(testAccount)
	require.NoError(t, err)
	assert.Empty(t, m.Bookmarks.LocalToServer)
	assert.NotNil(t, m.Folders.ServerToLocal)

	cache, err := s.GetCache(testAccount)
	require.NoError(t, err)
	assert.Empty(t, cache.Children)

	ids, err := s.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []string{testAccount}, ids)
}

func TestInitAccount_KeepsExistingState(t *testing.T) {
	s := testDB(t)

	data := mapping.NewData()
	data.Folders.LocalToServer["l"] = "s"
	data.Folders.ServerToLocal["s"] = "l"
	require.NoError(t, s.SetMappings(testAccount, data))

	require.NoError(t, s.InitAccount(testAccount))

	got, err := s.GetMappings(testAccount)
	require.NoError(t, err)
	assert.Equal(t, "s", got.Folders.LocalToServer["l"])
}

func TestResetAccount(t *testing.T) {
	s := testDB(t)

	cache := tree.NewRoot(tree.Local, "root", tree.NewBookmark(tree.Local, "b", "root", "x", "http://x"))
	require.NoError(t, s.SetCache(testAccount, cache))
	require.NoError(t, s.ResetAccount(testAccount))

	got, err := s.GetCache(testAccount)
	require.NoError(t, err)
	assert.Empty(t, got.Children)
}

func TestDeleteAccount(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.InitAccount("a"))
	require.NoError(t, s.InitAccount("b"))

	require.NoError(t, s.DeleteAccount("a"))
	require.NoError(t, s.DeleteAccount("missing"))

	ids, err := s.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

// --- Cache ---

func TestCache_RoundTrip(t *testing.T) {
	s := testDB(t)

	cache := tree.NewRoot(tree.Local, "root",
		tree.NewFolder(tree.Local, "f", "root", "foo",
			tree.NewBookmark(tree.Local, "b", "f", "bar", "https://example.com/"),
		),
	)
	require.NoError(t, s.SetCache(testAccount, cache))

	got, err := s.GetCache(testAccount)
	require.NoError(t, err)

	assert.Equal(t, tree.Inspect(cache, true), tree.Inspect(got, true))
	assert.Equal(t, cache.Hash(true), got.Hash(true))
	assert.Equal(t, "f", got.FindBookmark("b").ParentID)
	assert.Equal(t, tree.Local, got.FindBookmark("b").Location)
}

func TestGetCache_MissingAccount(t *testing.T) {
	s := testDB(t)

	got, err := s.GetCache("nobody")
	require.NoError(t, err)
	assert.True(t, got.IsRoot)
	assert.Empty(t, got.Children)
}

// --- Account data ---

func TestAccountData_RoundTrip(t *testing.T) {
	s := testDB(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := AccountData{Strategy: "default", LastSync: now, Syncing: 0.5, Error: "boom", Outcome: "error"}
	require.NoError(t, s.SetAccountData(testAccount, want))

	got, err := s.GetAccountData(testAccount)
	require.NoError(t, err)
	assert.Equal(t, want.Strategy, got.Strategy)
	assert.True(t, want.LastSync.Equal(got.LastSync))
	assert.InDelta(t, 0.5, got.Syncing, 0.0001)
	assert.Equal(t, "boom", got.Error)
}

func TestGetAccountData_Missing(t *testing.T) {
	s := testDB(t)

	got, err := s.GetAccountData("nobody")
	require.NoError(t, err)
	assert.Equal(t, AccountData{}, got)
}
