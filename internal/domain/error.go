package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// Queue errors
	ErrQueueFull           = errors.New("queue is full")
	ErrClientLimitExceeded = errors.New("client submission limit exceeded")
	ErrJobNotFound         = errors.New("job not found")
	ErrInvalidTransition   = errors.New("invalid job state transition")
	ErrUnknownKind         = errors.New("unknown job kind")

	// Processing errors
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrTimeout                 = errors.New("processing timed out")
	ErrAllProvidersUnavailable = errors.New("all ai providers unavailable")
	ErrProcessing              = errors.New("processing failed")

	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorCode is the machine readable classification carried by every error response.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeQueueFull           ErrorCode = "QUEUE_FULL"
	CodeClientLimitExceeded ErrorCode = "CLIENT_LIMIT_EXCEEDED"
	CodeRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeAIProvider          ErrorCode = "AI_PROVIDER_ERROR"
	CodeProcessing          ErrorCode = "PROCESSING_ERROR"
	CodeUnknown             ErrorCode = "UNKNOWN_ERROR"
	CodeJobNotFound         ErrorCode = "JOB_NOT_FOUND"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
)

var messages = map[ErrorCode]string{
	CodeValidation:          "The request contains invalid fields.",
	CodeQueueFull:           "The queue is full. Please try again shortly.",
	CodeClientLimitExceeded: "Too many jobs submitted. Please wait before submitting again.",
	CodeRateLimitExceeded:   "Too many requests. Please slow down.",
	CodeTimeout:             "The request took too long to process.",
	CodeAIProvider:          "The AI service is currently unavailable.",
	CodeProcessing:          "The job could not be processed.",
	CodeUnknown:             "An unexpected error occurred.",
	CodeJobNotFound:         "Job not found or expired.",
	CodeInvalidRequest:      "The request could not be read.",
}

// MessageFor returns the short user facing message for a code.
func MessageFor(code ErrorCode) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[CodeUnknown]
}

// ValidationError reports rejected payload fields. Field keys are JSON names.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

// CodeOf maps an error onto the shared taxonomy. Anything unrecognised is UNKNOWN_ERROR.
func CodeOf(err error) ErrorCode {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve), errors.Is(err, ErrUnknownKind):
		return CodeValidation
	case errors.Is(err, ErrQueueFull):
		return CodeQueueFull
	case errors.Is(err, ErrClientLimitExceeded):
		return CodeClientLimitExceeded
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimitExceeded
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrAllProvidersUnavailable):
		return CodeAIProvider
	case errors.Is(err, ErrProcessing):
		return CodeProcessing
	case errors.Is(err, ErrJobNotFound):
		return CodeJobNotFound
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidRequest
	default:
		return CodeUnknown
	}
}
