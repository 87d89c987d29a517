package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ai-prompt-enhancer/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.EnhancementProvider = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.EnhancementProvider using the Chat Completions API.
// Any OpenAI-compatible gateway works through baseURL.
type OpenAIAdapter struct {
	client  openai.Client
	model   string
	maxOut  int
	maxIn   int
	counter *TokenCounter
}

func NewOpenAIAdapter(apiKey, baseURL, model string, maxOut, maxIn int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by the failover client
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client:  openai.NewClient(opts...),
		model:   model,
		maxOut:  maxOut,
		maxIn:   maxIn,
		counter: NewTokenCounter(model),
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Complete(ctx context.Context, prompt adapter.Prompt) (adapter.Completion, error) {
	if o.maxIn > 0 {
		// a tokenizer failure only skips the budget check
		if n, err := o.counter.Count(prompt.System + "\n" + prompt.User); err == nil && n > o.maxIn {
			return adapter.Completion{}, &ProviderError{
				Provider: o.Name(),
				Kind:     KindInvalidRequest,
				Err:      fmt.Errorf("prompt has %d tokens, budget is %d", n, o.maxIn),
			}
		}
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.Completion{}, classifyOpenAI(err)
	}
	for _, c := range resp.Choices {
		if text := strings.TrimSpace(c.Message.Content); text != "" {
			return adapter.Completion{
				Text: text,
				Usage: adapter.Usage{
					PromptTokens:     int(resp.Usage.PromptTokens),
					CompletionTokens: int(resp.Usage.CompletionTokens),
				},
			}, nil
		}
	}
	return adapter.Completion{}, &ProviderError{Provider: o.Name(), Kind: KindUnknown, Err: errEmptyCompletion}
}

func classifyOpenAI(err error) *ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "openai",
			Kind:       kindFromStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return normalize("openai", err)
}
