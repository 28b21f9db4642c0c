package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

const (
	recordKeyPrefix = "conversation:"
	// IndexKey holds the JSON list of every stored conversation id
	IndexKey = "conversations"
)

// recordRepo stores conversation records as JSON documents in a KV store
type recordRepo struct {
	kv repo.KVStore

	// guards the read-modify-write of the index key within this process
	indexMu sync.Mutex
}

// NewRecordRepo creates a record repository on top of a KV store
func NewRecordRepo(kv repo.KVStore) repo.RecordRepo {
	return &recordRepo{kv: kv}
}

// RecordKey returns the KV key of a conversation record
func RecordKey(id string) string {
	return recordKeyPrefix + id
}

// Get loads a record
func (r *recordRepo) Get(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	data, err := r.kv.Get(ctx, RecordKey(id))
	if err != nil {
		return nil, err
	}
	var rec domain.ConversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	rec.Normalize()
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// Put replaces a record
func (r *recordRepo) Put(ctx context.Context, rec *domain.ConversationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	return r.kv.Set(ctx, RecordKey(rec.ID), data)
}

// Register adds an id to the conversation index
func (r *recordRepo) Register(ctx context.Context, id string) error {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	ids, err := r.list(ctx)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return nil
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return r.kv.Set(ctx, IndexKey, data)
}

// List returns every registered id, sorted
func (r *recordRepo) List(ctx context.Context) ([]string, error) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	return r.list(ctx)
}

func (r *recordRepo) list(ctx context.Context) ([]string, error) {
	data, err := r.kv.Get(ctx, IndexKey)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
