package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatline/cmd/chatline/chat"
	examcmder "github.com/papercomputeco/chatline/cmd/chatline/exam"
	mcpcmder "github.com/papercomputeco/chatline/cmd/chatline/mcp"
	mergecmder "github.com/papercomputeco/chatline/cmd/chatline/merge"
	pushcmder "github.com/papercomputeco/chatline/cmd/chatline/push"
	servecmder "github.com/papercomputeco/chatline/cmd/chatline/serve"
	transcriptscmder "github.com/papercomputeco/chatline/cmd/chatline/transcripts"
)

const rootLongDesc string = `chatline keeps a conversation with Gemini.

The Gemini chat API is stateless: every message is sent together with
the whole conversation so far. chatline holds that conversation, in the
terminal or per browser session over HTTP, and can record transcripts
to a local SQLite database. It can also write practice exams.

The API key is read from GEMINI_API_KEY (or GOOGLE_API_KEY).`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatline",
		Short:         "Chat with Gemini, keeping the conversation",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(mcpcmder.NewMCPCmd())
	cmd.AddCommand(transcriptscmder.NewTranscriptsCmd())
	cmd.AddCommand(mergecmder.NewMergeCmd())
	cmd.AddCommand(pushcmder.NewPushCmd())
	cmd.AddCommand(examcmder.NewExamCmd())

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
