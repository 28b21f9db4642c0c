package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

// Request is what a handler receives for one match
type Request struct {
	Match       domain.MatchResult
	Record      *domain.ConversationRecord // snapshot, safe to read
	SenderID    string
	Attachments []domain.Attachment
	Message     *domain.InboundMessage
}

// Handler runs a command
type Handler func(ctx context.Context, req *Request) error

// Dispatcher invokes the handlers of matched grammars
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.Named("dispatcher"),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a grammar id
func (d *Dispatcher) Register(grammarID string, h Handler) error {
	if _, ok := d.registry.Get(grammarID); !ok {
		return fmt.Errorf("unknown grammar %q", grammarID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[grammarID] = h
	return nil
}

// Unhandled lists grammar ids with no registered handler
func (d *Dispatcher) Unhandled() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for _, g := range d.registry.Grammars() {
		if _, ok := d.handlers[g.ID]; !ok {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// Dispatch invokes each matched handler in registry declaration order.
// A failing or panicking handler does not stop the remaining ones; the
// failures are returned combined.
func (d *Dispatcher) Dispatch(ctx context.Context, matches []domain.MatchResult, rec *domain.ConversationRecord, msg *domain.InboundMessage) error {
	ordered := append([]domain.MatchResult(nil), matches...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return d.index(ordered[i].GrammarID) < d.index(ordered[j].GrammarID)
	})

	var errs error
	for _, match := range ordered {
		d.mu.RLock()
		h, ok := d.handlers[match.GrammarID]
		d.mu.RUnlock()
		if !ok {
			d.logger.Debug("No handler registered", zap.String("grammar", match.GrammarID))
			continue
		}

		req := &Request{
			Match:       match,
			Record:      rec.Clone(),
			SenderID:    msg.SenderID,
			Attachments: msg.Attachments,
			Message:     msg,
		}
		if err := d.invoke(ctx, h, req); err != nil {
			d.logger.Warn("Handler failed",
				zap.String("grammar", match.GrammarID),
				zap.String("chat", rec.ID),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", match.GrammarID, err))
		}
	}
	return errs
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, req)
}

func (d *Dispatcher) index(grammarID string) int {
	if g, ok := d.registry.Get(grammarID); ok {
		return g.Index
	}
	return len(d.registry.Grammars())
}
