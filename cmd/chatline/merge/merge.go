package mergecmder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/cmd/chatline/storepath"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

const mergeLongDesc string = `Merge one or more transcript databases into a target.

Content-addressing makes this a simple union: turns that already
exist in the target are skipped (deduped by hash), and conversations
that share an opening are merged into one branching history.

Examples:
  chatline merge laptop.db desktop.db
  chatline merge --db /tmp/merged.db ~/alice/chatline.db ~/bob/chatline.db`

const mergeShortDesc string = "Merge transcript databases"

type mergeCommander struct {
	dbPath string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.dbPath, "db", "d", "", "Path to target transcript database")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	// Opening a SQLite path creates it, so a mistyped source must be caught first
	for _, srcPath := range sources {
		if err := checkSource(srcPath); err != nil {
			return err
		}
	}

	targetPath, err := storepath.Resolve(c.dbPath)
	if err != nil {
		return fmt.Errorf("could not resolve target database: %w", err)
	}

	target, err := merkle.NewSQLiteStorer(targetPath)
	if err != nil {
		return fmt.Errorf("could not open target database %s: %w", targetPath, err)
	}
	defer target.Close()

	var totalNew, totalDuped int

	for _, srcPath := range sources {
		srcNew, srcDuped, err := mergeFrom(ctx, target, srcPath)
		if err != nil {
			return err
		}

		totalNew += srcNew
		totalDuped += srcDuped

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed\n", srcPath, srcNew, srcDuped)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new turns from %d sources (%d already existed) into %s\n",
		totalNew, len(sources), totalDuped, targetPath)

	return nil
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("source database %s does not exist", path)
	case err != nil:
		return fmt.Errorf("could not open source database %s: %w", path, err)
	case info.IsDir():
		return fmt.Errorf("source database %s is a directory", path)
	}
	return nil
}

// mergeFrom copies every node of the database at srcPath into target.
// Nodes are listed in insertion order, so parents land before children.
func mergeFrom(ctx context.Context, target merkle.Storer, srcPath string) (int, int, error) {
	source, err := merkle.NewSQLiteStorer(srcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("could not open source database %s: %w", srcPath, err)
	}
	defer source.Close()

	nodes, err := source.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("could not list turns from %s: %w", srcPath, err)
	}

	var srcNew, srcDuped int
	for _, n := range nodes {
		isNew, err := target.Put(ctx, n)
		if err != nil {
			return 0, 0, fmt.Errorf("could not put node %s: %w", n.Hash, err)
		}
		if isNew {
			srcNew++
		} else {
			srcDuped++
		}
	}

	return srcNew, srcDuped, nil
}
