// Package validation decodes and sanitizes job payloads before they reach the queue.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	// report JSON names so field errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns the sanitized payload for kind, or a *domain.ValidationError.
func (v *Validator) Validate(kind string, raw json.RawMessage) (model.Payload, error) {
	k, err := model.ParseJobKind(strings.TrimSpace(kind))
	if err != nil {
		return nil, fieldError("kind", "unsupported kind")
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fieldError("payload", "required field")
	}

	switch k {
	case model.JobKindPrompt:
		var p model.PromptPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		p.Task = clean(p.Task)
		p.Context = clean(p.Context)
		p.Tone = strings.ToLower(clean(p.Tone))
		p.OutputFormat = strings.ToLower(clean(p.OutputFormat))
		if err := v.check(p); err != nil {
			return nil, err
		}
		return p, nil

	case model.JobKindEmail:
		var p model.EmailPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		p.Purpose = clean(p.Purpose)
		p.Recipient = clean(p.Recipient)
		p.Tone = strings.ToLower(clean(p.Tone))
		p.Length = strings.ToLower(clean(p.Length))
		points := p.KeyPoints[:0]
		for _, kp := range p.KeyPoints {
			if kp = clean(kp); kp != "" {
				points = append(points, kp)
			}
		}
		p.KeyPoints = points
		if len(p.KeyPoints) == 0 {
			p.KeyPoints = nil
		}
		if err := v.check(p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fieldError("kind", "unsupported kind")
}

func (v *Validator) check(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = tagMessage(fe)
	}
	return &domain.ValidationError{Fields: fields}
}

func decodeStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return fieldError(strings.Trim(name, `"`), "unknown field")
		}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return fieldError(te.Field, "wrong type")
		}
		return fieldError("payload", "malformed payload")
	}
	if dec.More() {
		return fieldError("payload", "malformed payload")
	}
	return nil
}

// clean trims the value and drops control characters other than newline and tab.
func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " items"
		}
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "invalid value"
}

func fieldError(field, msg string) *domain.ValidationError {
	return &domain.ValidationError{Fields: map[string]string{field: msg}}
}
