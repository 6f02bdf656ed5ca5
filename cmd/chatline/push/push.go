package pushcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatline/cmd/chatline/storepath"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
	"github.com/papercomputeco/chatline/server"
)

const pushLongDesc string = `Push local transcripts to a remote chatline server.

Every recorded turn in the local transcript database is sent to the
server's /transcripts/nodes endpoint in batches. Turns the server
already has are skipped. Turns it rejects, because their hash does not
match their content or their role is unknown, are listed by hash and
make the command fail once every batch has been sent.

Examples:
  chatline push http://192.168.1.42:8080
  chatline push --db ~/.chatline/chatline.db http://localhost:8080`

const pushShortDesc string = "Push transcripts to a remote chatline server"

// ErrRejected is returned when the server refused some of the pushed turns.
var ErrRejected = errors.New("server rejected turns")

type pushCommander struct {
	dbPath    string
	batchSize int
	timeout   time.Duration
}

func NewPushCmd() *cobra.Command {
	cmder := &pushCommander{}

	cmd := &cobra.Command{
		Use:   "push <server-url>",
		Short: pushShortDesc,
		Long:  pushLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.dbPath, "db", "d", "", "Path to local transcript database")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", 500, "Turns per HTTP request")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 30*time.Second, "Timeout for each HTTP request")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	if c.batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive, got %d", c.batchSize)
	}
	serverURL = strings.TrimRight(serverURL, "/")

	dbPath, err := storepath.Resolve(c.dbPath)
	if err != nil {
		return fmt.Errorf("could not resolve local database: %w", err)
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return fmt.Errorf("could not open local database %s: %w", dbPath, err)
	}
	defer storer.Close()

	nodes, err := storer.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list local turns: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No local turns to push.")
		return nil
	}

	fmt.Fprintf(out, "Pushing %d turns from %s to %s\n", len(nodes), dbPath, serverURL)

	var total server.ImportResponse
	for batch := range slices.Chunk(nodes, c.batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		first := total.New + total.Duplicate + total.Errors
		last := first + len(batch) - 1

		resp, err := c.postBatch(serverURL, batch)
		if err != nil {
			return fmt.Errorf("push failed on turns %d-%d: %w", first, last, err)
		}

		fmt.Fprintf(out, "  turns %d-%d: %d new, %d already existed, %d rejected\n",
			first, last, resp.New, resp.Duplicate, resp.Errors)
		for _, hash := range resp.Rejected {
			fmt.Fprintf(out, "    rejected %s\n", hash)
		}

		total.Add(*resp)
	}

	fmt.Fprintf(out, "Pushed %d new turns (%d already existed, %d errors)\n",
		total.New, total.Duplicate, total.Errors)

	if total.Errors > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRejected, total.Errors, len(nodes))
	}
	return nil
}

// postBatch sends one batch and decodes the server's import report. Every
// node is answered for, so a report that does not add up is an error.
func (c *pushCommander) postBatch(serverURL string, nodes []*merkle.Node) (*server.ImportResponse, error) {
	agent := fiber.Post(serverURL + "/transcripts/nodes").JSON(nodes)
	if c.timeout > 0 {
		agent = agent.Timeout(c.timeout)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("HTTP request failed: %w", errors.Join(errs...))
	}

	if code != http.StatusOK {
		var errResp llm.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", code, errResp.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", code, string(body))
	}

	var result server.ImportResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}

	if got := result.New + result.Duplicate + result.Errors; got != len(nodes) {
		return nil, fmt.Errorf("server accounted for %d of %d turns", got, len(nodes))
	}

	return &result, nil
}
