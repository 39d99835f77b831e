// Package identity adapts the external identity provider. The core trusts
// its operator answer and never re-derives authorization.
package identity

import (
	"context"

	"github.com/google/uuid"
)

type Provider interface {
	IsOperator(ctx context.Context, id uuid.UUID) (bool, error)
}

// StaticProvider answers from a fixed operator set, loaded from config.
// Deployments behind a real identity service swap this for a client of it.
type StaticProvider struct {
	operators map[uuid.UUID]struct{}
}

func NewStaticProvider(operatorIDs []string) *StaticProvider {
	ops := make(map[uuid.UUID]struct{}, len(operatorIDs))
	for _, s := range operatorIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		ops[id] = struct{}{}
	}
	return &StaticProvider{operators: ops}
}

func (p *StaticProvider) IsOperator(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := p.operators[id]
	return ok, nil
}
