package exam

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/papercomputeco/chatline/pkg/llm"
)

var dataURLPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// ErrBadDataURL is returned for images that are not base64 data URLs.
var ErrBadDataURL = errors.New("image must be a base64 data URL")

// ParseDataURL decodes a "data:<mime>;base64,<data>" URL into an attachment.
func ParseDataURL(s string) (llm.Attachment, error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return llm.Attachment{}, ErrBadDataURL
	}

	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return llm.Attachment{}, fmt.Errorf("%w: %w", ErrBadDataURL, err)
	}
	return llm.Attachment{MIMEType: m[1], Data: data}, nil
}

// DataURL encodes an attachment as a base64 data URL.
func DataURL(a llm.Attachment) string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

var promptTemplate = template.Must(template.New("exam").Parse(`Create an exam with these parameters:
- Subject: {{.Subject}}
- Grade: {{.Grade}}
- Textbook series: {{.BookSet}}
- Topic: {{.Topic}}
{{- if .Requirements}}
- Content and requirements from the teacher: "{{.Requirements}}". If this is a link, work from what it points to. If it is text, follow it closely.
{{- else}}
- No specific requirements. Cover the whole topic.
{{- end}}
- Question type: {{.Type}}
- Difficulty: {{.Difficulty}}
- Number of questions: {{if .Essay}}1 (essay){{else}}{{.QuestionCount}}{{end}}

Formatting rules:
1. Every question starts with its difficulty label, for example [Recall], [Understanding] or [Application].
2. Use the language and knowledge expected for {{.Subject}} in grade {{.Grade}} following "{{.BookSet}}".
3. When the teacher provides an image or specific content, base the questions on it first.
{{- if .Essay}}

This is an essay exam:
1. Create exactly one question.
2. The answer key has two parts: a detailed outline, then a complete essay of about {{.PageCount}} pages.
{{- end}}
{{- if .CustomBookSet}}

The teacher named the textbook series "{{.CustomBookSet}}". Draw on what you know about it, or closely related curricula, for content, terminology and approach.
{{- end}}
{{- if .Image}}

Analyze the attached image and build the questions from the knowledge it contains.
{{- end}}
`))

type promptData struct {
	Request
	BookSet       string
	CustomBookSet string
	Essay         bool
	Image         bool
}

// Prompt builds the generation request for r. The request is validated first.
func (r Request) Prompt() (llm.Prompt, error) {
	if err := r.Validate(); err != nil {
		return llm.Prompt{}, err
	}

	data := promptData{
		Request: r,
		BookSet: r.EffectiveBookSet(),
		Essay:   r.IsEssay(),
		Image:   r.Image != "",
	}
	if r.usesCustomBookSet() {
		data.CustomBookSet = data.BookSet
	}
	if data.Essay && data.PageCount == 0 {
		data.PageCount = DefaultPageCount
	}

	var text strings.Builder
	if err := promptTemplate.Execute(&text, data); err != nil {
		return llm.Prompt{}, fmt.Errorf("building exam prompt: %w", err)
	}

	temperature := Temperature
	p := llm.Prompt{
		Model:             Model,
		SystemInstruction: SystemInstruction,
		Text:              text.String(),
		Temperature:       &temperature,
		MaxOutputTokens:   MaxOutputTokens,
	}

	if r.Image != "" {
		img, err := ParseDataURL(r.Image)
		if err != nil {
			return llm.Prompt{}, err
		}
		p.Attachments = []llm.Attachment{img}
	}
	return p, nil
}
