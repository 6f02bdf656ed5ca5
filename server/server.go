// Package server serves chat sessions over HTTP. Every browser session owns
// its own conversation; transcripts can be inspected when a store is configured.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/exam"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/merkle"
	"github.com/papercomputeco/chatline/pkg/session"
)

// Server is the HTTP front-end for chat sessions.
type Server struct {
	config   Config
	sessions *session.Manager
	storer   merkle.Storer
	logger   *zap.Logger
	markdown goldmark.Markdown
	exams    exam.Generator
	app      *fiber.App
}

// Option configures a Server.
type Option func(*Server)

// WithExams enables exam generation through gen.
func WithExams(gen exam.Generator) Option {
	return func(s *Server) {
		s.exams = gen
	}
}

// New creates a Server. storer may be nil, in which case the transcript
// endpoints report that no store is configured.
func New(config Config, sessions *session.Manager, storer merkle.Storer, logger *zap.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		sessions: sessions,
		storer:   storer,
		logger:   logger,
		markdown: goldmark.New(),
		app:      app,
	}
	for _, opt := range opts {
		opt(s)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	app.Post("/sessions", s.handleCreateSession)
	app.Get("/sessions/:id/history", s.handleHistory)
	app.Post("/sessions/:id/messages", s.handleSubmit)
	app.Delete("/sessions/:id", s.handleEndSession)

	app.Get("/transcripts", s.handleListTranscripts)
	app.Get("/transcripts/:hash", s.handleGetTranscript)
	app.Post("/transcripts/nodes", s.handleImportNodes)

	app.Post("/exams", s.handleExam)

	return s
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.RunWithListener(ctx, ln)
}

// RunWithListener serves on ln until ctx is cancelled.
func (s *Server) RunWithListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting chat server",
		zap.String("listen", ln.Addr().String()),
		zap.Duration("session_ttl", s.config.SessionTTL),
	)

	if s.config.SessionTTL > 0 {
		go s.sweepSessions(ctx)
	}

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	return s.app.Listener(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// minSweepInterval bounds how often idle sessions are swept.
const minSweepInterval = time.Second

// sweepInterval is half the TTL, never shorter than minSweepInterval.
func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/2, minSweepInterval)
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval(s.config.SessionTTL))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sessions.Sweep(now)
		}
	}
}

// handleCreateSession starts a new session with an empty conversation.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := s.sessions.Create()
	return c.Status(fiber.StatusCreated).JSON(map[string]string{"id": sess.ID})
}

// handleEndSession drops a session and its conversation.
func (s *Server) handleEndSession(c *fiber.Ctx) error {
	if err := s.sessions.End(c.Params("id")); err != nil {
		return respondError(c, fiber.StatusNotFound, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleHistory returns every turn of the session with its markdown rendered.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusNotFound, err)
	}

	history := sess.Conversation.History()
	turns := make([]llm.RenderedTurn, 0, len(history))
	for _, t := range history {
		turns = append(turns, llm.RenderedTurn{Turn: t, HTML: s.renderMarkdown(t.Content)})
	}

	return c.JSON(llm.HistoryResponse{SessionID: sess.ID, Turns: turns})
}

// handleSubmit appends the user's message and replies with the model's answer.
// A failed API call keeps the user turn and reports the error kind.
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusNotFound, err)
	}

	var req llm.SubmitRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	if c.QueryBool("stream") {
		return s.handleStreamingSubmit(c, sess, req.Text)
	}

	startTime := time.Now()
	reply, err := sess.Conversation.Submit(c.UserContext(), req.Text)
	if err != nil {
		return s.respondSubmitError(c, sess, err)
	}

	s.logger.Info("turn completed",
		zap.String("session", sess.ID),
		zap.Int("turns", sess.Conversation.Len()),
		zap.Duration("duration", time.Since(startTime)),
	)

	return c.JSON(llm.SubmitResponse{Reply: reply, Turns: sess.Conversation.Len()})
}

// handleStreamingSubmit streams the reply as NDJSON chunks.
func (s *Server) handleStreamingSubmit(c *fiber.Ctx, sess *session.Session, text string) error {
	// The slot is claimed before the stream starts so a concurrent submission
	// still gets a proper status
	res, err := sess.Conversation.Reserve(text)
	if err != nil {
		return s.respondSubmitError(c, sess, err)
	}

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		write := s.chunkWriter(w)

		startTime := time.Now()
		_, err := res.SubmitStream(context.Background(), func(content string) {
			write(llm.StreamChunk{Content: content})
		})
		if err != nil {
			s.logger.Warn("streamed turn failed", zap.String("session", sess.ID), zap.Error(err))
			write(llm.StreamChunk{Done: true, Error: err.Error(), Kind: llm.KindOf(err)})
			return
		}

		s.logger.Info("streamed turn completed",
			zap.String("session", sess.ID),
			zap.Int("turns", sess.Conversation.Len()),
			zap.Duration("duration", time.Since(startTime)),
		)
		write(llm.StreamChunk{Done: true})
	}))

	return nil
}

func (s *Server) respondSubmitError(c *fiber.Ctx, sess *session.Session, err error) error {
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return respondError(c, fiber.StatusBadRequest, err)
	case errors.Is(err, conversation.ErrSubmissionInFlight):
		return respondError(c, fiber.StatusConflict, err)
	}

	s.logger.Warn("turn failed",
		zap.String("session", sess.ID),
		zap.Error(err),
	)
	return respondError(c, apiErrorStatus(err), err)
}

// apiErrorStatus maps a failed chat API call onto a response status.
func apiErrorStatus(err error) int {
	if errors.Is(err, llm.ErrQuota) {
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusBadGateway
}

// ExamResponse is a generated exam with its rendered markdown.
type ExamResponse struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// handleExam generates an exam. The markdown is streamed as NDJSON chunks
// unless ?stream=false asks for a single JSON response.
func (s *Server) handleExam(c *fiber.Ctx) error {
	if s.exams == nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "exam generation not configured"})
	}

	var req exam.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("failed to parse exam request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	// Validation errors get a proper status before any stream starts
	if err := req.Validate(); err != nil {
		return respondError(c, fiber.StatusBadRequest, err)
	}

	log := s.logger.With(
		zap.String("subject", req.Subject),
		zap.Int("grade", req.Grade),
		zap.String("topic", logger.Preview(req.Topic, 50)),
	)

	if !c.QueryBool("stream", true) {
		startTime := time.Now()
		markdown, err := exam.Generate(c.UserContext(), s.exams, req, nil)
		if err != nil {
			log.Warn("exam generation failed", zap.Error(err))
			return respondError(c, apiErrorStatus(err), err)
		}

		log.Info("exam generated", zap.Int("length", len(markdown)), zap.Duration("duration", time.Since(startTime)))
		return c.JSON(ExamResponse{Markdown: markdown, HTML: s.renderMarkdown(markdown)})
	}

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		write := s.chunkWriter(w)

		startTime := time.Now()
		markdown, err := exam.Generate(context.Background(), s.exams, req, func(content string) {
			write(llm.StreamChunk{Content: content})
		})
		if err != nil {
			log.Warn("exam generation failed", zap.Error(err))
			write(llm.StreamChunk{Done: true, Error: err.Error(), Kind: llm.KindOf(err)})
			return
		}

		log.Info("exam generated", zap.Int("length", len(markdown)), zap.Duration("duration", time.Since(startTime)))
		write(llm.StreamChunk{Done: true})
	}))

	return nil
}

// chunkWriter returns a function writing one NDJSON chunk to w and flushing it.
func (s *Server) chunkWriter(w *bufio.Writer) func(llm.StreamChunk) {
	enc := json.NewEncoder(w)
	return func(chunk llm.StreamChunk) {
		if err := enc.Encode(chunk); err != nil {
			s.logger.Warn("failed to write chunk", zap.Error(err))
			return
		}
		w.Flush()
	}
}

// TranscriptTurn is one recorded turn of a transcript.
type TranscriptTurn struct {
	Hash       string   `json:"hash"`
	ParentHash *string  `json:"parent_hash,omitempty"`
	Role       llm.Role `json:"role"`
	Content    string   `json:"content"`
}

// TranscriptResponse contains a recorded conversation ending at HeadHash.
type TranscriptResponse struct {
	// Turns in chronological order (oldest first, up to and including the head)
	Turns    []TranscriptTurn `json:"turns"`
	HeadHash string           `json:"head_hash"`
	Depth    int              `json:"depth"`
}

// handleListTranscripts returns every recorded conversation (one per leaf node).
func (s *Server) handleListTranscripts(c *fiber.Ctx) error {
	if s.storer == nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "transcript store not configured"})
	}

	ctx := c.UserContext()
	leaves, err := s.storer.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	transcripts := make([]TranscriptResponse, 0, len(leaves))
	for _, leaf := range leaves {
		t, err := BuildTranscript(ctx, s.storer, leaf.Hash)
		if err != nil {
			s.logger.Warn("failed to build transcript for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		transcripts = append(transcripts, *t)
	}

	return c.JSON(map[string]any{
		"count":       len(transcripts),
		"transcripts": transcripts,
	})
}

// handleGetTranscript returns the conversation leading up to a given node.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	if s.storer == nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "transcript store not configured"})
	}

	t, err := BuildTranscript(c.UserContext(), s.storer, c.Params("hash"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}
	return c.JSON(t)
}

// ImportResponse reports the outcome of a node import.
type ImportResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`

	// Rejected lists the hashes of nodes that failed verification or storage.
	Rejected []string `json:"rejected,omitempty"`
}

// Add accumulates other into r.
func (r *ImportResponse) Add(other ImportResponse) {
	r.New += other.New
	r.Duplicate += other.Duplicate
	r.Errors += other.Errors
	r.Rejected = append(r.Rejected, other.Rejected...)
}

func (r *ImportResponse) reject(n *merkle.Node) {
	r.Errors++
	if n != nil {
		r.Rejected = append(r.Rejected, n.Hash)
	}
}

// handleImportNodes stores nodes pushed from another chatline store. Nodes
// whose hash does not match their content, or whose role is neither user nor
// model, are counted as errors and skipped.
func (s *Server) handleImportNodes(c *fiber.Ctx) error {
	if s.storer == nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "transcript store not configured"})
	}

	var nodes []*merkle.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		s.logger.Debug("failed to parse nodes", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.UserContext()
	var resp ImportResponse
	for _, n := range nodes {
		if !n.Verify() || !n.Turn.Role.Valid() {
			resp.reject(n)
			continue
		}

		isNew, err := s.storer.Put(ctx, n)
		switch {
		case err != nil:
			s.logger.Warn("failed to import node", zap.String("hash", n.Hash), zap.Error(err))
			resp.reject(n)
		case isNew:
			resp.New++
		default:
			resp.Duplicate++
		}
	}

	s.logger.Info("imported nodes",
		zap.Int("new", resp.New),
		zap.Int("duplicate", resp.Duplicate),
		zap.Int("errors", resp.Errors),
	)
	return c.JSON(resp)
}

// BuildTranscript constructs the TranscriptResponse for the given head hash.
func BuildTranscript(ctx context.Context, storer merkle.Storer, hash string) (*TranscriptResponse, error) {
	nodes, err := merkle.Chronological(ctx, storer, hash)
	if err != nil {
		return nil, err
	}

	turns := make([]TranscriptTurn, 0, len(nodes))
	for _, n := range nodes {
		turns = append(turns, TranscriptTurn{
			Hash:       n.Hash,
			ParentHash: n.ParentHash,
			Role:       n.Turn.Role,
			Content:    n.Turn.Content,
		})
	}

	return &TranscriptResponse{
		Turns:    turns,
		HeadHash: hash,
		Depth:    len(turns),
	}, nil
}

func (s *Server) renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(content), &buf); err != nil {
		s.logger.Debug("markdown render failed",
			zap.Error(err),
			zap.String("content_preview", logger.Preview(content, 50)),
		)
		return ""
	}
	return buf.String()
}

func respondError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(llm.ErrorResponse{Error: err.Error(), Kind: llm.KindOf(err)})
}
