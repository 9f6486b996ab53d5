package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type Supervisor interface {
	Classify(ctx context.Context, messages []*schema.Message) (RouteLabel, error)
}

// Specialist runs a reason-act loop over the conversation and returns the
// accumulated trace ending with the final assistant message.
type Specialist interface {
	Run(ctx context.Context, messages []*schema.Message) ([]*schema.Message, error)
}

type Registry interface {
	Supervisor() Supervisor
	Provider() Specialist
	Policy() Specialist
	Comparison() Specialist
}

type ProviderDirectory interface {
	List(ctx context.Context) ([]ProviderRecord, error)
	Lookup(ctx context.Context, providerID string) (ProviderRecord, bool, error)
}

type PolicySearcher interface {
	Search(ctx context.Context, query string, category Category, k int) ([]PolicyChunk, error)
}
