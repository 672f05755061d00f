package unitofwork

import (
	"context"

	"github.com/Dembrane/echo-sub002/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
	ContextItemRepository() contract.ContextItemRepository
	ConversationRepository() contract.ConversationRepository
	ConversationEmbeddingRepository() contract.ConversationEmbeddingRepository
}
