package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/jimdaga/cost-model-service/internal/config"
)

// New builds the Completer selected by cfg.Provider. The returned close
// function releases provider resources and is never nil.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), noop, nil
	case config.ProviderVertex:
		client, err := NewVertexClient(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return client, client.Close, nil
	case config.ProviderStub:
		return NewStubClient(2 * time.Second), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
