package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexjbarnes/marksync/internal/resource"
	"github.com/alexjbarnes/marksync/internal/serializer"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <account>",
		Short: "Write the local bookmarks of an account as XBEL, HTML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exportFormat(format, output)
			if err != nil {
				return err
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			local, err := a.local(args[0])
			if err != nil {
				return err
			}

			root, err := local.GetBookmarksTree(cmd.Context())
			if err != nil {
				return err
			}

			data, err := serializer.Marshal(f, root)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "xbel, html or json (default from the output extension, else xbel)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func exportFormat(format, output string) (serializer.Format, error) {
	f := serializer.Format(format)

	switch {
	case format != "":
		if !f.Valid() {
			return "", fmt.Errorf("unknown format %q", format)
		}
	case serializer.FromPath(output) != "":
		f = serializer.FromPath(output)
	default:
		f = serializer.FormatXBEL
	}

	return f, nil
}

func newImportCmd() *cobra.Command {
	var (
		format string
		folder string
	)

	cmd := &cobra.Command{
		Use:   "import <account> <file>",
		Short: "Add the bookmarks of an XBEL, HTML or JSON file to the local tree of an account",
		Long: `Import copies the bookmarks of a file into a new folder of the local
bookmarks file. The next pass sends them to the server.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			f := serializer.Format(format)
			if format == "" {
				f = serializer.Detect(data)
			} else if !f.Valid() {
				return fmt.Errorf("unknown format %q", format)
			}

			imported, err := serializer.Unmarshal(f, data, tree.Local)
			if err != nil {
				return err
			}

			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			local, err := a.local(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			// Creates the account's root folder when it is still missing.
			if err := local.Refresh(ctx); err != nil {
				return err
			}

			root, err := local.GetBookmarksTree(ctx)
			if err != nil {
				return err
			}

			parentID, err := local.CreateFolder(ctx, tree.NewFolder(tree.Local, "", root.ID, folder))
			if err != nil {
				return err
			}

			n, err := graft(ctx, local, parentID, imported.Children)
			if err != nil {
				return err
			}

			if err := local.Flush(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d bookmarks into %q\n", n, folder)

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "xbel, html or json (default detected from the content)")
	cmd.Flags().StringVar(&folder, "folder", "Imported", "title of the folder receiving the bookmarks")

	return cmd
}

// graft recreates items below parentID on r and returns the number of
// bookmarks created.
func graft(ctx context.Context, r resource.Resource, parentID string, items []tree.Item) (int, error) {
	n := 0

	for _, item := range items {
		switch it := item.(type) {
		case *tree.Bookmark:
			if _, err := r.CreateBookmark(ctx, tree.NewBookmark(tree.Local, "", parentID, it.Title, it.URL)); err != nil {
				return n, err
			}

			n++
		case *tree.Folder:
			id, err := r.CreateFolder(ctx, tree.NewFolder(tree.Local, "", parentID, it.Title))
			if err != nil {
				return n, err
			}

			created, err := graft(ctx, r, id, it.Children)
			n += created

			if err != nil {
				return n, err
			}
		}
	}

	return n, nil
}
