package repo

import (
	"context"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

// RecordRepo persists whole conversation records
type RecordRepo interface {
	// Get returns ErrNotFound for an unseen conversation
	Get(ctx context.Context, id string) (*domain.ConversationRecord, error)

	// Put replaces the whole record
	Put(ctx context.Context, rec *domain.ConversationRecord) error

	// Register adds a conversation id to the index used by List
	Register(ctx context.Context, id string) error

	// List returns the ids of every stored conversation
	List(ctx context.Context) ([]string, error)
}
