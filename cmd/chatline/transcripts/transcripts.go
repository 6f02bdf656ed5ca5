package transcriptscmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/cmd/chatline/storepath"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

const transcriptsLongDesc string = `Inspect recorded conversations.

Every recorded conversation ends in a leaf node of the transcript
database. 'list' shows one line per conversation; 'show' prints the
conversation that ends at a given node hash. A hash prefix is enough
as long as it is unambiguous.

Examples:
  chatline transcripts list
  chatline transcripts show 3f2a9c`

const transcriptsShortDesc string = "Inspect recorded conversations"

type transcriptsCommander struct {
	dbPath string
}

func NewTranscriptsCmd() *cobra.Command {
	cmder := &transcriptsCommander{}

	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: transcriptsShortDesc,
		Long:  transcriptsLongDesc,
	}

	cmd.PersistentFlags().StringVarP(&cmder.dbPath, "db", "d", "", "Path to SQLite transcript database")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.list(cmd.Context(), cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <hash>",
		Short: "Print the conversation ending at a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.show(cmd.Context(), cmd, args[0])
		},
	})

	return cmd
}

func (c *transcriptsCommander) open() (*merkle.SQLiteStorer, error) {
	dbPath, err := storepath.Resolve(c.dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not resolve transcript database: %w", err)
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not open transcript database %s: %w", dbPath, err)
	}
	return storer, nil
}

func (c *transcriptsCommander) list(ctx context.Context, cmd *cobra.Command) error {
	storer, err := c.open()
	if err != nil {
		return err
	}
	defer storer.Close()

	leaves, err := storer.Leaves(ctx)
	if err != nil {
		return fmt.Errorf("could not list conversations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(leaves) == 0 {
		fmt.Fprintln(out, "No recorded conversations.")
		return nil
	}

	for _, leaf := range leaves {
		nodes, err := storer.Ancestry(ctx, leaf.Hash)
		if err != nil {
			return fmt.Errorf("could not load conversation %s: %w", leaf.Hash, err)
		}

		// Ancestry runs newest first, so the opening turn is last
		opening := nodes[len(nodes)-1].Turn.Content
		fmt.Fprintf(out, "%s  %3d turns  %s\n", shortHash(leaf.Hash), len(nodes), logger.Preview(opening, 60))
	}

	return nil
}

func (c *transcriptsCommander) show(ctx context.Context, cmd *cobra.Command, hash string) error {
	storer, err := c.open()
	if err != nil {
		return err
	}
	defer storer.Close()

	full, err := resolveHash(ctx, storer, hash)
	if err != nil {
		return err
	}

	nodes, err := merkle.Chronological(ctx, storer, full)
	if err != nil {
		return fmt.Errorf("could not load conversation %s: %w", full, err)
	}

	out := cmd.OutOrStdout()
	for i, n := range nodes {
		if i > 0 {
			fmt.Fprintln(out)
		}
		label := "Gemini"
		if n.Turn.Role == llm.RoleUser {
			label = "You"
		}
		fmt.Fprintf(out, "%s:\n%s\n", label, n.Turn.Content)
	}

	return nil
}

// resolveHash expands an unambiguous hash prefix to the full node hash.
func resolveHash(ctx context.Context, storer merkle.Storer, prefix string) (string, error) {
	if ok, err := storer.Has(ctx, prefix); err != nil {
		return "", err
	} else if ok {
		return prefix, nil
	}

	nodes, err := storer.List(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, n := range nodes {
		if strings.HasPrefix(n.Hash, prefix) {
			matches = append(matches, n.Hash)
		}
	}

	switch len(matches) {
	case 0:
		return "", merkle.ErrNotFound{Hash: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("hash prefix %s is ambiguous (%d nodes match)", prefix, len(matches))
	}
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
