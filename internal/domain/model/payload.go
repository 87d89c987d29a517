package model

// Payload is the validated, sanitized input of a job. The queue treats it as opaque.
type Payload interface {
	Kind() JobKind
	clonePayload() Payload
}

// PromptPayload asks for an improved AI prompt from a short task description.
type PromptPayload struct {
	Task         string `json:"task" validate:"required,min=3,max=2000"`
	Context      string `json:"context,omitempty" validate:"max=4000"`
	Tone         string `json:"tone,omitempty" validate:"omitempty,oneof=professional casual technical creative"`
	OutputFormat string `json:"outputFormat,omitempty" validate:"omitempty,oneof=text markdown list"`
}

func (PromptPayload) Kind() JobKind { return JobKindPrompt }

func (p PromptPayload) clonePayload() Payload { return p }

// EmailPayload asks for a drafted email.
type EmailPayload struct {
	Purpose   string   `json:"purpose" validate:"required,min=3,max=2000"`
	Recipient string   `json:"recipient,omitempty" validate:"max=200"`
	Tone      string   `json:"tone,omitempty" validate:"omitempty,oneof=professional casual technical creative"`
	KeyPoints []string `json:"keyPoints,omitempty" validate:"max=10,dive,max=500"`
	Length    string   `json:"length,omitempty" validate:"omitempty,oneof=short medium long"`
}

func (EmailPayload) Kind() JobKind { return JobKindEmail }

func (p EmailPayload) clonePayload() Payload {
	if p.KeyPoints != nil {
		p.KeyPoints = append([]string(nil), p.KeyPoints...)
	}
	return p
}
