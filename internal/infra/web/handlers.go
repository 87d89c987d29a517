package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/infra/api"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/usecase"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

type submitRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type submitResponse struct {
	Success              bool             `json:"success"`
	JobID                string           `json:"jobId"`
	Position             int              `json:"position"`
	EstimatedWaitSeconds int              `json:"estimatedWaitSeconds"`
	QueueStats           model.QueueStats `json:"queueStats"`
}

type statusResponse struct {
	Success              bool             `json:"success"`
	JobID                string           `json:"jobId"`
	Status               model.JobStatus  `json:"status"`
	Position             int              `json:"position,omitempty"`
	EstimatedWaitSeconds int              `json:"estimatedWaitSeconds,omitempty"`
	Result               *model.JobResult `json:"result,omitempty"`
	Error                *model.JobError  `json:"error,omitempty"`
	QueueStats           model.QueueStats `json:"queueStats"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, domain.CodeInvalidRequest, nil, 0)
		return
	}

	out, err := s.queue.Submit(r.Context(), usecase.SubmitInput{
		ClientID:  clientID(r),
		RequestID: logging.TraceID(r.Context()),
		Kind:      req.Kind,
		Payload:   req.Payload,
	})
	if err != nil {
		s.writeQueueError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusAccepted, submitResponse{
		Success:              true,
		JobID:                out.JobID,
		Position:             out.Position,
		EstimatedWaitSeconds: out.EstimatedWaitSeconds,
		QueueStats:           out.Stats,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	out, err := s.queue.Status(r.Context(), clientID(r), jobID)
	if err != nil {
		s.writeQueueError(w, r, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, statusResponse{
		Success:              true,
		JobID:                out.Job.ID,
		Status:               out.Job.Status,
		Position:             out.Position,
		EstimatedWaitSeconds: out.EstimatedWaitSeconds,
		Result:               out.Job.Result,
		Error:                out.Job.Error,
		QueueStats:           out.Stats,
	})
}

// writeQueueError maps use case errors onto status codes. Internal error text
// never reaches the client.
func (s *Server) writeQueueError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	switch code {
	case domain.CodeValidation:
		var ve *domain.ValidationError
		var fields map[string]string
		if errors.As(err, &ve) {
			fields = ve.Fields
		}
		api.WriteError(w, http.StatusBadRequest, code, fields, 0)
	case domain.CodeInvalidRequest:
		api.WriteError(w, http.StatusBadRequest, code, nil, 0)
	case domain.CodeQueueFull:
		api.WriteError(w, http.StatusTooManyRequests, code, nil, seconds(s.opts.QueueFullRetry))
	case domain.CodeClientLimitExceeded:
		api.WriteError(w, http.StatusTooManyRequests, code, nil, seconds(s.opts.ClientLimitRetry))
	case domain.CodeJobNotFound:
		api.WriteError(w, http.StatusNotFound, code, nil, 0)
	default:
		logging.With(r.Context(), s.log).Error().Str("code", string(code)).Msg("queue request failed")
		api.WriteError(w, http.StatusInternalServerError, code, nil, 0)
	}
}
