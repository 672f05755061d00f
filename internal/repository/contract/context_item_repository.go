package contract

import (
	"context"

	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"

	"github.com/google/uuid"
)

type ContextItemRepository interface {
	Create(ctx context.Context, item *entity.ContextItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ContextItem, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ContextItem, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// LockAllBySessionId flips every item of the session to locked in a
	// single statement and returns the locked set. All-or-nothing: a failed
	// update locks no items.
	LockAllBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entity.ContextItem, error)
	UnlockAllBySessionId(ctx context.Context, sessionId uuid.UUID) error
}
