// Package gemini implements the stateless chat API on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/llm"
)

// Client sends a conversation to Gemini. It keeps no chat state between calls:
// every call starts a fresh chat seeded with the replayed history.
type Client struct {
	client *genai.Client
	opts   llm.Options
	logger *zap.Logger
}

// Ensure Client implements the streaming chat API.
var _ conversation.StreamChatter = (*Client)(nil)

// New creates a client for the Gemini API. An empty apiKey returns
// llm.ErrMissingCredential.
func New(ctx context.Context, cfg config.Gemini, apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.ErrMissingCredential
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client: c,
		opts:   cfg.Options,
		logger: logger,
	}, nil
}

// Chat sends message with history as prior context and returns the reply text.
func (c *Client) Chat(ctx context.Context, history []llm.Message, message string) (string, error) {
	startTime := time.Now()

	chat, err := c.client.Chats.Create(ctx, c.opts.Model, c.generationConfig(), toContents(history))
	if err != nil {
		return "", classify(err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", classify(err)
	}

	text, err := replyText(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("gemini reply",
		zap.String("model", c.opts.Model),
		zap.Int("history_len", len(history)),
		zap.Int("reply_len", len(text)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return text, nil
}

// ChatStream is Chat with the reply handed to onChunk as it is generated.
func (c *Client) ChatStream(ctx context.Context, history []llm.Message, message string, onChunk func(string)) (string, error) {
	startTime := time.Now()

	chat, err := c.client.Chats.Create(ctx, c.opts.Model, c.generationConfig(), toContents(history))
	if err != nil {
		return "", classify(err)
	}

	var full strings.Builder
	chunks := 0
	for resp, err := range chat.SendMessageStream(ctx, genai.Part{Text: message}) {
		if err != nil {
			return "", classify(err)
		}
		if resp == nil {
			continue
		}

		text := resp.Text()
		if text == "" {
			continue
		}
		chunks++
		full.WriteString(text)
		onChunk(text)
	}

	if full.Len() == 0 {
		return "", llm.NewAPIError(llm.KindMalformedResponse, "stream ended without any text", nil)
	}

	c.logger.Debug("gemini stream complete",
		zap.String("model", c.opts.Model),
		zap.Int("history_len", len(history)),
		zap.Int("chunks", chunks),
		zap.Duration("duration", time.Since(startTime)),
	)
	return full.String(), nil
}

// Generate streams the model's answer to a one-shot prompt. onChunk, when
// non-nil, receives each piece of text as it arrives. The full text is
// returned once the stream ends.
func (c *Client) Generate(ctx context.Context, p llm.Prompt, onChunk func(string)) (string, error) {
	startTime := time.Now()

	parts := []*genai.Part{genai.NewPartFromText(p.Text)}
	for _, a := range p.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	model := c.opts.Model
	if p.Model != "" {
		model = p.Model
	}

	var full strings.Builder
	chunks := 0
	for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, c.promptConfig(p)) {
		if err != nil {
			return "", classify(err)
		}
		if resp == nil {
			continue
		}

		text := resp.Text()
		if text == "" {
			continue
		}
		chunks++
		full.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
	}

	if full.Len() == 0 {
		return "", llm.NewAPIError(llm.KindMalformedResponse, "stream ended without any text", nil)
	}

	c.logger.Debug("gemini generation complete",
		zap.String("model", model),
		zap.Int("attachments", len(p.Attachments)),
		zap.Int("chunks", chunks),
		zap.Duration("duration", time.Since(startTime)),
	)
	return full.String(), nil
}

// promptConfig applies the prompt's overrides on top of the configured settings.
func (c *Client) promptConfig(p llm.Prompt) *genai.GenerateContentConfig {
	gc := c.generationConfig()
	if p.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(p.SystemInstruction, genai.RoleUser)
	}
	if p.Temperature != nil {
		gc.Temperature = genai.Ptr(*p.Temperature)
	}
	if p.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = p.MaxOutputTokens
	}
	return gc
}

func (c *Client) generationConfig() *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.opts.Temperature),
		TopP:            genai.Ptr(c.opts.TopP),
		TopK:            genai.Ptr(float32(c.opts.TopK)),
		MaxOutputTokens: c.opts.MaxOutputTokens,
	}
	if c.opts.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(c.opts.SystemInstruction, genai.RoleUser)
	}
	return gc
}

// toContents maps the replay payload onto genai's {role, parts} contents.
func toContents(history []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		parts := make([]*genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, genai.NewPartFromText(p))
		}
		contents = append(contents, &genai.Content{Role: string(m.Role), Parts: parts})
	}
	return contents
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		msg := "response has no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", llm.NewAPIError(llm.KindMalformedResponse, msg, nil)
	}

	text := resp.Text()
	if text == "" {
		msg := "response has no text"
		if reason := resp.Candidates[0].FinishReason; reason != "" {
			msg = fmt.Sprintf("response has no text (finish reason %s)", reason)
		}
		return "", llm.NewAPIError(llm.KindMalformedResponse, msg, nil)
	}
	return text, nil
}

// classify maps an SDK or transport error onto the closed error taxonomy.
func classify(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		return fromAPIError(apiErr, err)
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		return fromAPIError(*apiErrPtr, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewAPIError(llm.KindNetwork, err.Error(), err)
	}

	return llm.NewAPIError(llm.KindMalformedResponse, err.Error(), err)
}

func fromAPIError(e genai.APIError, err error) *llm.APIError {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}

	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden,
		e.Status == "UNAUTHENTICATED" || e.Status == "PERMISSION_DENIED",
		e.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "api key"):
		return llm.NewAPIError(llm.KindAuth, msg, err)
	case e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED":
		return llm.NewAPIError(llm.KindQuota, msg, err)
	case e.Code >= http.StatusInternalServerError:
		return llm.NewAPIError(llm.KindNetwork, msg, err)
	default:
		return llm.NewAPIError(llm.KindMalformedResponse, msg, err)
	}
}
