package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

// SerializerConfig contains update serializer configuration
type SerializerConfig struct {
	Window       time.Duration // delay from the first change of a burst to its flush
	WriteTimeout time.Duration
}

// DefaultSerializerConfig returns default serializer configuration
func DefaultSerializerConfig() SerializerConfig {
	return SerializerConfig{
		Window:       1500 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// maxReloads bounds how often a new pending record is re-read while writes
// keep landing
const maxReloads = 3

type pendingWrite struct {
	rec   *domain.ConversationRecord
	timer *time.Timer
}

type inflightWrite struct {
	rec  *domain.ConversationRecord
	done chan struct{}
}

// UpdateSerializer is the conversation state store front. It coalesces
// changes per conversation into one pending in-memory record and keeps at
// most one physical write per conversation in flight.
type UpdateSerializer struct {
	recordRepo repo.RecordRepo
	config     SerializerConfig
	logger     *zap.Logger

	mu       sync.Mutex
	pending  map[string]*pendingWrite
	inflight map[string]*inflightWrite
	writes   uint64 // writes begun
	flushes  sync.WaitGroup
}

// NewUpdateSerializer creates a new update serializer
func NewUpdateSerializer(recordRepo repo.RecordRepo, config SerializerConfig, logger *zap.Logger) *UpdateSerializer {
	if config.Window <= 0 {
		config.Window = DefaultSerializerConfig().Window
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultSerializerConfig().WriteTimeout
	}
	return &UpdateSerializer{
		recordRepo: recordRepo,
		config:     config,
		logger:     logger.Named("store"),
		pending:    make(map[string]*pendingWrite),
		inflight:   make(map[string]*inflightWrite),
	}
}

// Get returns a conversation record, preferring unflushed in-memory state
// over the stored copy. Returns repo.ErrNotFound for unseen conversations.
func (s *UpdateSerializer) Get(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	s.mu.Lock()
	if p, ok := s.pending[id]; ok {
		rec := p.rec.Clone()
		s.mu.Unlock()
		return rec, nil
	}
	if w, ok := s.inflight[id]; ok {
		rec := w.rec.Clone()
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	rec, err := s.recordRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return rec, nil
}

// Mutate applies fn to the caller's record and to the pending record of the
// conversation, scheduling a flush if none is pending. A new pending record
// starts from the newest known state, never from the caller's copy.
func (s *UpdateSerializer) Mutate(ctx context.Context, rec *domain.ConversationRecord, fn func(*domain.ConversationRecord)) {
	s.mu.Lock()
	p, ok := s.pending[rec.ID]
	if !ok {
		base := s.latest(ctx, rec)
		// another caller may have scheduled a write while the store was read
		if p, ok = s.pending[rec.ID]; !ok {
			p = &pendingWrite{rec: base}
			s.pending[rec.ID] = p
			s.flushes.Add(1)
			id := rec.ID
			p.timer = time.AfterFunc(s.config.Window, func() { s.flush(id, p) })
		}
	}
	fn(p.rec)
	p.rec.UpdatedAt = time.Now()
	s.mu.Unlock()

	fn(rec)
}

// latest returns a copy of the newest known state of rec's conversation: the
// write in flight, else the stored record, else rec itself. Callers hold s.mu;
// it is released while the store is read.
func (s *UpdateSerializer) latest(ctx context.Context, rec *domain.ConversationRecord) *domain.ConversationRecord {
	current := rec.Clone()
	for range maxReloads {
		if w, ok := s.inflight[rec.ID]; ok {
			return w.rec.Clone()
		}

		seq := s.writes
		s.mu.Unlock()
		stored, err := s.recordRepo.Get(ctx, rec.ID)
		s.mu.Lock()

		switch {
		case err == nil:
			current = stored
		case errors.Is(err, repo.ErrNotFound):
			current = rec.Clone()
		default:
			s.logger.Warn("Failed to reload record, applying change to caller copy",
				zap.String("chat", rec.ID), zap.Error(err))
			return rec.Clone()
		}
		// a write that began during the read may be newer than what was read
		if s.writes == seq {
			return current
		}
	}
	return current
}

// SetProperty stores a value in the record's property bag and schedules a
// coalesced write
func (s *UpdateSerializer) SetProperty(ctx context.Context, rec *domain.ConversationRecord, key string, value any) error {
	scratch := &domain.ConversationRecord{}
	if err := scratch.SetProp(key, value); err != nil {
		return err
	}
	raw := scratch.Props[key]
	s.Mutate(ctx, rec, func(r *domain.ConversationRecord) {
		r.Normalize()
		r.Props[key] = append([]byte(nil), raw...)
	})
	return nil
}

// Put replaces the whole record immediately, dropping any pending coalesced
// write for it, and waits for the write to finish
func (s *UpdateSerializer) Put(ctx context.Context, rec *domain.ConversationRecord) error {
	s.mu.Lock()
	if p, ok := s.pending[rec.ID]; ok && p.timer.Stop() {
		delete(s.pending, rec.ID)
		s.flushes.Done()
	}
	w, prev := s.beginWrite(rec.ID, rec.Clone())
	s.mu.Unlock()

	return s.write(ctx, w, prev)
}

// flush runs when a burst's window elapses
func (s *UpdateSerializer) flush(id string, p *pendingWrite) {
	defer s.flushes.Done()

	s.mu.Lock()
	if s.pending[id] == p {
		delete(s.pending, id)
	}
	w, prev := s.beginWrite(id, p.rec.Clone())
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()
	if err := s.write(ctx, w, prev); err != nil {
		// no rollback: memory may run ahead of the store until the next write
		s.logger.Error("Coalesced write failed", zap.String("chat", id), zap.Error(err))
	}
}

// beginWrite registers an in-flight write; callers hold s.mu
func (s *UpdateSerializer) beginWrite(id string, rec *domain.ConversationRecord) (*inflightWrite, *inflightWrite) {
	prev := s.inflight[id]
	s.writes++
	w := &inflightWrite{rec: rec, done: make(chan struct{})}
	s.inflight[id] = w
	return w, prev
}

func (s *UpdateSerializer) write(ctx context.Context, w *inflightWrite, prev *inflightWrite) error {
	defer func() {
		s.mu.Lock()
		if s.inflight[w.rec.ID] == w {
			delete(s.inflight, w.rec.ID)
		}
		s.mu.Unlock()
		close(w.done)
	}()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return fmt.Errorf("failed to write record %s: %w", w.rec.ID, ctx.Err())
		}
	}

	if err := s.recordRepo.Put(ctx, w.rec); err != nil {
		return fmt.Errorf("failed to write record %s: %w", w.rec.ID, err)
	}
	return nil
}

// PendingCount returns the number of conversations with a scheduled write
func (s *UpdateSerializer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every pending record now and waits for all writes to finish
func (s *UpdateSerializer) Flush(ctx context.Context) error {
	s.mu.Lock()
	due := make(map[string]*pendingWrite, len(s.pending))
	for id, p := range s.pending {
		due[id] = p
	}
	s.mu.Unlock()

	for id, p := range due {
		if p.timer.Stop() {
			s.flush(id, p)
		}
	}

	done := make(chan struct{})
	go func() {
		s.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
