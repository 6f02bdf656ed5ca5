package examcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/exam"
	"github.com/papercomputeco/chatline/pkg/gemini"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/tui"
)

const examLongDesc string = `Generate a practice exam with an answer key.

The exam is written in markdown and streamed to stdout as Gemini
produces it. Literature and essay exams get one essay question,
answered with a detailed outline and a complete model essay.

An image of a textbook page or worksheet can be attached with --image;
the questions are then drawn from it.

Examples:
  chatline exam --subject Mathematics --grade 7 --topic Fractions
  chatline exam --subject Literature --grade 11 --topic "Autumn poetry" --pages 3
  chatline exam --subject Biology --grade 9 --topic Cells --image page.jpg --output cells.md`

const examShortDesc string = "Generate a practice exam with Gemini"

// maxImageSize bounds the attached image. Inline data is capped by the API.
const maxImageSize = 15 << 20

type examCommander struct {
	configPath string
	imagePath  string
	outputPath string
	render     bool
	debug      bool

	req        exam.Request
	questionTy string
	difficulty string

	// newGenerator creates the exam generator once the config is loaded
	newGenerator func(ctx context.Context, cfg *config.Config, log *zap.Logger) (exam.Generator, error)
}

func NewExamCmd() *cobra.Command {
	return newExamCmd(&examCommander{newGenerator: geminiGenerator})
}

func newExamCmd(cmder *examCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: examShortDesc,
		Long:  examLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cmder.req.Subject, "subject", "", "Subject, e.g. Mathematics (Literature always gets an essay)")
	f.IntVar(&cmder.req.Grade, "grade", 0, "Grade from 1 to 12")
	f.StringVar(&cmder.req.BookSet, "book-set", "Current national curriculum", "Textbook series, or Other with --custom-book-set")
	f.StringVar(&cmder.req.CustomBookSet, "custom-book-set", "", "Textbook series to follow when --book-set is Other")
	f.StringVar(&cmder.req.Topic, "topic", "", "Topic the exam covers")
	f.StringVar(&cmder.req.Requirements, "requirements", "", "Specific content or a link the questions should follow")
	f.StringVar(&cmder.questionTy, "type", string(exam.MixedTypes), "Question type: "+joinValues(exam.QuestionTypes))
	f.StringVar(&cmder.difficulty, "difficulty", string(exam.MixedDifficulty), "Difficulty: "+joinValues(exam.Difficulties))
	f.IntVar(&cmder.req.QuestionCount, "count", 10, "Number of questions (ignored for essays)")
	f.IntVar(&cmder.req.PageCount, "pages", 0, "Length of the model essay in pages, 1 to 5 (default 2)")
	f.StringVar(&cmder.imagePath, "image", "", "Image file to draw the questions from")
	f.StringVarP(&cmder.outputPath, "output", "o", "", "Also write the exam markdown to this file")
	f.BoolVar(&cmder.render, "render", false, "Render the finished exam in the terminal instead of streaming raw markdown")
	f.StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (default ~/.chatline/config.toml)")
	f.BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *examCommander) run(ctx context.Context, cmd *cobra.Command) error {
	req, err := c.request()
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, llm.ErrMissingCredential) {
			return fmt.Errorf("%w: set %s (or %s)", err, config.APIKeyEnv, config.FallbackAPIKeyEnv)
		}
		return err
	}

	// stdout carries the exam, so logs go to the log file
	log, closeLog, err := logger.NewFileLogger(c.debug, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	defer log.Sync()

	gen, err := c.newGenerator(ctx, cfg, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var onChunk func(string)
	if !c.render {
		onChunk = func(s string) { io.WriteString(out, s) }
	}

	log.Info("generating exam",
		zap.String("subject", req.Subject),
		zap.Int("grade", req.Grade),
		zap.String("type", string(req.Type)),
		zap.Bool("image", req.Image != ""),
	)

	markdown, err := exam.Generate(ctx, gen, req, onChunk)
	if err != nil {
		log.Error("exam generation failed", zap.Error(err))
		return err
	}

	if c.render {
		if err := c.renderTo(out, markdown); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out)
	}

	if c.outputPath != "" {
		if err := os.WriteFile(c.outputPath, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("could not write %s: %w", c.outputPath, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved exam to %s\n", c.outputPath)
	}
	return nil
}

// request assembles and validates the exam request from the flags.
func (c *examCommander) request() (exam.Request, error) {
	req := c.req
	req.Type = exam.QuestionType(c.questionTy)
	req.Difficulty = exam.Difficulty(c.difficulty)

	if c.imagePath != "" {
		img, err := loadImage(c.imagePath)
		if err != nil {
			return exam.Request{}, err
		}
		req.Image = exam.DataURL(img)
	}

	if err := req.Validate(); err != nil {
		return exam.Request{}, err
	}
	return req, nil
}

func (c *examCommander) renderTo(w io.Writer, markdown string) error {
	width := 80
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}

	renderer, err := tui.NewGlamourRenderer(width - 2)
	if err != nil {
		return fmt.Errorf("could not create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("could not render exam: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// loadImage reads an image file and sniffs its MIME type.
func loadImage(path string) (llm.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return llm.Attachment{}, fmt.Errorf("could not read image: %w", err)
	}
	if info.Size() > maxImageSize {
		return llm.Attachment{}, fmt.Errorf("image %s is %d bytes, the limit is %d", path, info.Size(), maxImageSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Attachment{}, fmt.Errorf("could not read image: %w", err)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return llm.Attachment{}, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return llm.Attachment{MIMEType: mime, Data: data}, nil
}

func geminiGenerator(ctx context.Context, cfg *config.Config, log *zap.Logger) (exam.Generator, error) {
	client, err := gemini.New(ctx, cfg.Gemini, cfg.APIKey, log)
	if err != nil {
		return nil, fmt.Errorf("could not create Gemini client: %w", err)
	}
	return client, nil
}

func joinValues[T ~string](values []T) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = string(v)
	}
	return strings.Join(s, ", ")
}
