package ai

import (
	"fmt"
	"strings"
	"text/template"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/domain/ports/adapter"
)

// PromptBuilder turns a validated payload into provider-neutral prompt text.
type PromptBuilder interface {
	Build(payload model.Payload) (adapter.Prompt, error)
}

const promptSystem = `You are an expert prompt engineer. Rewrite the user's task into a clear, specific prompt for a large language model. State the goal, the relevant context, constraints and the expected output. Reply with the improved prompt only.`

const promptUser = `Task: {{.Task}}
{{- if .Context}}
Context: {{.Context}}
{{- end}}
Tone: {{or .Tone "professional"}}
Output format: {{or .OutputFormat "text"}}`

const emailSystem = `You are an assistant that writes concise, well structured emails. Reply with the email only: a subject line, then the body.`

const emailUser = `Purpose: {{.Purpose}}
{{- if .Recipient}}
Recipient: {{.Recipient}}
{{- end}}
Tone: {{or .Tone "professional"}}
Length: {{or .Length "medium"}}
{{- if .KeyPoints}}
Key points:
{{- range .KeyPoints}}
- {{.}}
{{- end}}
{{- end}}`

type kindTemplates struct {
	system string
	user   *template.Template
}

// TemplateBuilder renders one text/template per job kind.
type TemplateBuilder struct {
	byKind map[model.JobKind]kindTemplates
}

func NewTemplateBuilder() *TemplateBuilder {
	return &TemplateBuilder{byKind: map[model.JobKind]kindTemplates{
		model.JobKindPrompt: {system: promptSystem, user: template.Must(template.New("prompt").Parse(promptUser))},
		model.JobKindEmail:  {system: emailSystem, user: template.Must(template.New("email").Parse(emailUser))},
	}}
}

func (b *TemplateBuilder) Build(payload model.Payload) (adapter.Prompt, error) {
	if payload == nil {
		return adapter.Prompt{}, domain.ErrUnknownKind
	}
	t, ok := b.byKind[payload.Kind()]
	if !ok {
		return adapter.Prompt{}, domain.ErrUnknownKind
	}
	var sb strings.Builder
	if err := t.user.Execute(&sb, payload); err != nil {
		return adapter.Prompt{}, fmt.Errorf("render %s prompt: %w", payload.Kind(), err)
	}
	return adapter.Prompt{System: t.system, User: sb.String()}, nil
}
