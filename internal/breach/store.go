package breach

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists breaches. Find returns sentinel.ErrNotFound when the breach
// does not exist. Update replaces the mutable fields; breaches are never
// deleted.
type Store interface {
	Insert(ctx context.Context, b *Breach) error
	Find(ctx context.Context, breachID id.BreachID) (*Breach, error)
	Update(ctx context.Context, b *Breach) error
	List(ctx context.Context) ([]*Breach, error)
}
