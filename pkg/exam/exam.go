// Package exam turns a teacher's exam request into a one-shot Gemini prompt
// and streams back the generated exam with its answer key, in markdown.
package exam

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/papercomputeco/chatline/pkg/llm"
)

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid exam request")

// QuestionType is the kind of question the exam asks.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
	ShortAnswer    QuestionType = "short-answer"
	FillInTheBlank QuestionType = "fill-in-the-blank"
	Matching       QuestionType = "matching"
	Essay          QuestionType = "essay"
	MixedTypes     QuestionType = "mixed"
)

// QuestionTypes lists every accepted question type.
var QuestionTypes = []QuestionType{MultipleChoice, TrueFalse, ShortAnswer, FillInTheBlank, Matching, Essay, MixedTypes}

// Difficulty is the cognitive level the questions target.
type Difficulty string

const (
	Recall              Difficulty = "recall"
	Understanding       Difficulty = "understanding"
	Application         Difficulty = "application"
	AdvancedApplication Difficulty = "advanced-application"
	MixedDifficulty     Difficulty = "mixed"
)

// Difficulties lists every accepted difficulty.
var Difficulties = []Difficulty{Recall, Understanding, Application, AdvancedApplication, MixedDifficulty}

const (
	// LiteratureSubject always gets a single essay question.
	LiteratureSubject = "Literature"

	// OtherBookSet means the textbook series is named in CustomBookSet.
	OtherBookSet = "Other"

	MaxGrade         = 12
	MaxQuestionCount = 40
	MaxPageCount     = 5
	DefaultPageCount = 2

	// Generation settings for exams. Lower temperature keeps the output
	// close to the requested structure.
	Model           = "gemini-2.5-flash"
	Temperature     = float32(0.3)
	MaxOutputTokens = int32(8192)
)

// Request describes the exam to generate.
type Request struct {
	Subject       string `json:"subject"`
	Grade         int    `json:"grade"`
	BookSet       string `json:"book_set"`
	CustomBookSet string `json:"custom_book_set,omitempty"`
	Topic         string `json:"topic"`

	// Requirements is free text or a link the questions should follow
	Requirements string `json:"requirements,omitempty"`

	// Image is a base64 data URL the questions should be drawn from
	Image string `json:"image,omitempty"`

	Type          QuestionType `json:"type"`
	Difficulty    Difficulty   `json:"difficulty"`
	QuestionCount int          `json:"question_count"`

	// PageCount is the length of the model essay, essay exams only
	PageCount int `json:"page_count,omitempty"`
}

// IsEssay reports whether the exam is a single essay question answered with
// an outline and a full essay.
func (r Request) IsEssay() bool {
	return r.Type == Essay || strings.EqualFold(strings.TrimSpace(r.Subject), LiteratureSubject)
}

// EffectiveBookSet is the textbook series the questions follow.
func (r Request) EffectiveBookSet() string {
	if r.usesCustomBookSet() {
		return strings.TrimSpace(r.CustomBookSet)
	}
	return r.BookSet
}

func (r Request) usesCustomBookSet() bool {
	return strings.EqualFold(r.BookSet, OtherBookSet) && strings.TrimSpace(r.CustomBookSet) != ""
}

// Validate checks the request before anything is sent.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	case r.Grade < 1 || r.Grade > MaxGrade:
		return fmt.Errorf("%w: grade must be between 1 and %d, got %d", ErrInvalidRequest, MaxGrade, r.Grade)
	case strings.TrimSpace(r.BookSet) == "":
		return fmt.Errorf("%w: book set is required", ErrInvalidRequest)
	case strings.TrimSpace(r.Topic) == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	case !slices.Contains(QuestionTypes, r.Type):
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidRequest, r.Type)
	case !slices.Contains(Difficulties, r.Difficulty):
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, r.Difficulty)
	case r.PageCount < 0 || r.PageCount > MaxPageCount:
		return fmt.Errorf("%w: page count must be between 1 and %d, got %d", ErrInvalidRequest, MaxPageCount, r.PageCount)
	}

	// Essays always have one question, so the count is not checked
	if !r.IsEssay() && (r.QuestionCount < 1 || r.QuestionCount > MaxQuestionCount) {
		return fmt.Errorf("%w: question count must be between 1 and %d, got %d", ErrInvalidRequest, MaxQuestionCount, r.QuestionCount)
	}

	if r.Image != "" {
		if _, err := ParseDataURL(r.Image); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return nil
}

// Generator produces text for a one-shot prompt.
type Generator interface {
	Generate(ctx context.Context, p llm.Prompt, onChunk func(string)) (string, error)
}

// Generate validates req and streams the exam from gen to onChunk, which may
// be nil. The complete markdown is returned when the stream ends.
func Generate(ctx context.Context, gen Generator, req Request, onChunk func(string)) (string, error) {
	prompt, err := req.Prompt()
	if err != nil {
		return "", err
	}
	return gen.Generate(ctx, prompt, onChunk)
}
