package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt size with the model's BPE encoding, falling
// back to cl100k_base for models tiktoken does not know.
type TokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (t *TokenCounter) Count(text string) (int, error) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.EncodingForModel(t.model)
		if t.err != nil {
			t.enc, t.err = tiktoken.GetEncoding("cl100k_base")
		}
	})
	if t.err != nil {
		return 0, t.err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}
