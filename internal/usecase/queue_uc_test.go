//go:build !integration

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	"ai-prompt-enhancer/internal/infra/queue"
	"ai-prompt-enhancer/internal/infra/validation"

	"github.com/rs/zerolog"
)

type countingAdvancer struct {
	calls  int
	onCall func()
}

func (a *countingAdvancer) TryAdvance(context.Context) bool {
	a.calls++
	if a.onCall != nil {
		a.onCall()
	}
	return false
}

func newQueueUC(t *testing.T, limits queue.Limits, enforce bool) (*queueUC, *queue.Store, *countingAdvancer) {
	t.Helper()
	nop := zerolog.Nop()
	store := queue.NewStore(limits, &nop)
	adv := &countingAdvancer{}
	return NewQueueUseCase(validation.New(), store, adv, enforce, &nop), store, adv
}

func defaultLimits() queue.Limits {
	return queue.Limits{
		MaxJobs: 100, ClientLimit: 5, ClientWindow: time.Minute, JobTTL: 5 * time.Minute,
		ProcessingTimeout: time.Minute, SweepInterval: 30 * time.Second, PerJobEstimate: 10 * time.Second,
	}
}

func submitIn(client, task string) SubmitInput {
	raw, _ := json.Marshal(map[string]string{"task": task})
	return SubmitInput{ClientID: client, RequestID: "req-1", Kind: "prompt", Payload: raw}
}

func TestQueueUC_SubmitReportsPositionBeforeAdvance(t *testing.T) {
	uc, store, adv := newQueueUC(t, defaultLimits(), true)
	if _, err := uc.Submit(context.Background(), submitIn("a", "first job")); err != nil {
		t.Fatal(err)
	}

	// advancing claims the head; the reported position must not change
	adv.onCall = func() {
		if j, ok := store.NextPending(); ok {
			store.MarkProcessing(j.ID)
		}
	}
	out, err := uc.Submit(context.Background(), submitIn("b", "second job"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Position != 2 || out.EstimatedWaitSeconds != 20 {
		t.Fatalf("position/eta taken before advance: %+v", out)
	}
	if out.Stats.Processing != 1 || out.Stats.Pending != 1 {
		t.Fatalf("stats taken after advance: %+v", out.Stats)
	}
	if adv.calls != 2 {
		t.Fatalf("every submission triggers one advance, got %d", adv.calls)
	}
}

func TestQueueUC_SubmitRejections(t *testing.T) {
	limits := defaultLimits()
	limits.ClientLimit = 1
	uc, _, adv := newQueueUC(t, limits, true)

	_, err := uc.Submit(context.Background(), SubmitInput{ClientID: "a", Kind: "prompt", Payload: json.RawMessage(`{"task":"x"}`)})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want validation error, got %v", err)
	}
	if adv.calls != 0 {
		t.Fatalf("rejected submissions never advance the queue")
	}

	if _, err := uc.Submit(context.Background(), submitIn("a", "valid job")); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.Submit(context.Background(), submitIn("a", "valid job")); !errors.Is(err, domain.ErrClientLimitExceeded) {
		t.Fatalf("want client limit, got %v", err)
	}
}

func TestQueueUC_Status(t *testing.T) {
	uc, store, adv := newQueueUC(t, defaultLimits(), true)
	first, _ := uc.Submit(context.Background(), submitIn("a", "first job"))
	second, _ := uc.Submit(context.Background(), submitIn("b", "second job"))

	st, err := uc.Status(context.Background(), "b", second.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Job.Status != model.JobStatusPending || st.Position != 2 || st.EstimatedWaitSeconds != 20 {
		t.Fatalf("status: %+v", st)
	}
	if adv.calls != 3 {
		t.Fatalf("status must trigger an advance, calls=%d", adv.calls)
	}

	if _, err := uc.Status(context.Background(), "b", first.JobID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("foreign job must look unknown, got %v", err)
	}
	if _, err := uc.Status(context.Background(), "a", "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("unknown job: %v", err)
	}

	store.MarkProcessing(first.JobID)
	_ = store.MarkCompleted(first.JobID, model.JobResult{Content: "done", ProviderUsed: "gemini"})
	st, err = uc.Status(context.Background(), "a", first.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Job.Result == nil || st.Position != 0 || st.EstimatedWaitSeconds != 0 {
		t.Fatalf("completed job: %+v", st)
	}
}

func TestQueueUC_OwnershipDisabled(t *testing.T) {
	uc, _, _ := newQueueUC(t, defaultLimits(), false)
	out, _ := uc.Submit(context.Background(), submitIn("a", "shared job"))
	if _, err := uc.Status(context.Background(), "someone-else", out.JobID); err != nil {
		t.Fatalf("ownership disabled: %v", err)
	}
}
