// Package mcpserver exposes one conversation to an MCP client over stdio.
// The client process is the session: it gets a single conversation that
// lives as long as the connection.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/llm"
)

const (
	sendMessageTool = "send_message"
	historyTool     = "get_history"
)

// SendMessageInput is the argument of the send_message tool.
type SendMessageInput struct {
	Text string `json:"text" jsonschema:"the message to send to Gemini"`
}

// SendMessageOutput is the result of the send_message tool.
type SendMessageOutput struct {
	Reply string `json:"reply"`
	Turns int    `json:"turns"`
}

// HistoryInput takes no arguments.
type HistoryInput struct{}

// HistoryOutput is the result of the get_history tool.
type HistoryOutput struct {
	Turns []llm.Turn `json:"turns"`
}

// Server wraps an MCP server whose tools drive conv.
type Server struct {
	conv   *conversation.Conversation
	logger *zap.Logger
	server *mcp.Server
}

// New creates the MCP server for conv.
func New(conv *conversation.Conversation, version string, logger *zap.Logger) *Server {
	s := &Server{
		conv:   conv,
		logger: logger,
		server: mcp.NewServer(&mcp.Implementation{Name: "chatline", Version: version}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        sendMessageTool,
		Description: "Send a message to Gemini. The whole conversation so far is sent along with it, and the reply is returned.",
	}, s.sendMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        historyTool,
		Description: "Return every turn of the conversation, oldest first.",
	}, s.history)

	return s
}

// Run serves over stdin and stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single client over t. Run uses stdio instead.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) sendMessage(ctx context.Context, _ *mcp.CallToolRequest, in SendMessageInput) (*mcp.CallToolResult, SendMessageOutput, error) {
	reply, err := s.conv.Submit(ctx, in.Text)
	if err != nil {
		// APIError messages already name their kind
		s.logger.Warn("send_message failed", zap.Error(err), zap.String("kind", string(llm.KindOf(err))))
		return nil, SendMessageOutput{}, err
	}

	out := SendMessageOutput{Reply: reply, Turns: s.conv.Len()}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: reply}},
	}, out, nil
}

func (s *Server) history(_ context.Context, _ *mcp.CallToolRequest, _ HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	turns := s.conv.History()
	if turns == nil {
		turns = []llm.Turn{}
	}

	content := make([]mcp.Content, 0, len(turns))
	for _, t := range turns {
		content = append(content, &mcp.TextContent{Text: t.String()})
	}

	return &mcp.CallToolResult{Content: content}, HistoryOutput{Turns: turns}, nil
}
