package scoped

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/resource/memory"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ resource.Resource = (*Resource)(nil)

// sharedTree is a local tree holding the roots of two accounts:
// Work for one, Work/Team for another.
func sharedTree() *memory.Tree {
	return memory.New(tree.Local, tree.NewRoot(tree.Local, "0",
		tree.NewFolder(tree.Local, "w", "0", "Work",
			tree.NewBookmark(tree.Local, "b1", "w", "Docs", "https://docs.example/"),
			tree.NewFolder(tree.Local, "t", "w", "Team",
				tree.NewBookmark(tree.Local, "b2", "t", "Board", "https://board.example/"),
			),
			tree.NewBookmark(tree.Local, "b3", "w", "Wiki", "https://wiki.example/"),
		),
		tree.NewBookmark(tree.Local, "b4", "0", "Home", "https://home.example/"),
	))
}

func mustTree(t *testing.T, r resource.Resource) *tree.Folder {
	t.Helper()

	root, err := r.GetBookmarksTree(context.Background())
	require.NoError(t, err)

	return root
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/", nil},
		{"Work", []string{"Work"}},
		{" Work / Team /", []string{"Work", "Team"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPath(tt.in))
		})
	}
}

// --- GetBookmarksTree ---

func TestGetBookmarksTree_ScopesToFolder(t *testing.T) {
	r := New(sharedTree(), "Work")

	root := mustTree(t, r)
	assert.Equal(t, "w", root.ID)
	assert.True(t, root.IsRoot)
	assert.Empty(t, root.ParentID)
	assert.NotNil(t, root.FindBookmark("b2"))
	assert.Nil(t, root.FindBookmark("b4"), "items outside the folder are not visible")
}

func TestGetBookmarksTree_HidesOtherAccountRoots(t *testing.T) {
	r := New(sharedTree(), "Work", WithExcluded("Work/Team", "Elsewhere"))

	root := mustTree(t, r)
	assert.Nil(t, root.FindFolder("t"))
	assert.Nil(t, root.FindBookmark("b2"))
	assert.NotNil(t, root.FindBookmark("b3"))

	// The inner tree is untouched.
	inner, err := r.Resource.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, inner.FindFolder("t"))
}

func TestGetBookmarksTree_NestedSyncKeepsOtherRoots(t *testing.T) {
	r := New(sharedTree(), "Work", WithExcluded("Work/Team"), WithNestedSync(true))

	assert.NotNil(t, mustTree(t, r).FindBookmark("b2"))
}

func TestGetBookmarksTree_WholeTreeHidesScopedAccount(t *testing.T) {
	r := New(sharedTree(), "", WithExcluded("Work"))

	root := mustTree(t, r)
	assert.Equal(t, "0", root.ID)
	assert.Nil(t, root.FindFolder("w"))
	assert.NotNil(t, root.FindBookmark("b4"))
}

func TestGetBookmarksTree_MissingFolder(t *testing.T) {
	_, err := New(sharedTree(), "Nope").GetBookmarksTree(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrMissingLocalRoot))
}

// --- Refresh ---

func TestRefresh_CreatesMissingPath(t *testing.T) {
	ctx := context.Background()
	inner := sharedTree()
	r := New(inner, "Work/Projects/2026")

	require.NoError(t, r.Refresh(ctx))

	root := mustTree(t, r)
	assert.Empty(t, root.Children)

	full := mustTree(t, inner)
	work := full.FindFolder("w")
	require.Len(t, work.Children, 4)
	assert.Equal(t, "Projects", work.Children[3].GetTitle())

	// A second refresh finds the folders again.
	require.NoError(t, r.Refresh(ctx))
	assert.Equal(t, root.ID, mustTree(t, r).ID)
}

// --- Writes ---

func TestOrderFolder_KeepsHiddenChildren(t *testing.T) {
	ctx := context.Background()
	inner := sharedTree()
	r := New(inner, "Work", WithExcluded("Work/Team"))

	root := mustTree(t, r)
	require.Len(t, root.Children, 2)

	require.NoError(t, r.OrderFolder(ctx, root.ID, []tree.Ref{root.Children[1].Ref(), root.Children[0].Ref()}))

	work := mustTree(t, inner).FindFolder("w")
	require.Len(t, work.Children, 3)
	assert.Equal(t, "b3", work.Children[0].GetID())
	assert.Equal(t, "b1", work.Children[1].GetID())
	assert.Equal(t, "t", work.Children[2].GetID())
}

func TestRemoveFolder_RefusesForeignRoot(t *testing.T) {
	ctx := context.Background()
	inner := memory.New(tree.Local, tree.NewRoot(tree.Local, "0",
		tree.NewFolder(tree.Local, "a", "0", "Outer",
			tree.NewFolder(tree.Local, "other", "a", "Other"),
		),
		tree.NewFolder(tree.Local, "c", "0", "Plain"),
	))
	r := New(inner, "", WithExcluded("Outer/Other"))

	root := mustTree(t, r)

	err := r.RemoveFolder(ctx, root.FindFolder("a"))
	assert.True(t, errors.Is(err, apperrors.ErrForeignRoot))
	assert.NotNil(t, mustTree(t, inner).FindFolder("other"))

	require.NoError(t, r.RemoveFolder(ctx, root.FindFolder("c")))
	assert.Nil(t, mustTree(t, inner).FindFolder("c"))
}

func TestWrites_PassThrough(t *testing.T) {
	ctx := context.Background()
	inner := sharedTree()
	r := New(inner, "Work")

	id, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", "w", "New", "https://new.example/"))
	require.NoError(t, err)

	assert.NotNil(t, mustTree(t, r).FindBookmark(id))
	assert.Equal(t, "w", mustTree(t, inner).FindBookmark(id).ParentID)
}
