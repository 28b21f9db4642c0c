package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	registry, err := NewRegistry(testCategories())
	require.NoError(t, err)
	return NewDispatcher(registry, zap.NewNop())
}

func TestDispatch_RegistryOrder(t *testing.T) {
	d := newTestDispatcher(t)
	var calls []string
	record := func(id string) Handler {
		return func(ctx context.Context, req *Request) error {
			calls = append(calls, id+":"+req.Match.Arg(0))
			return nil
		}
	}
	require.NoError(t, d.Register("score", record("score")))
	require.NoError(t, d.Register("vote", record("vote")))

	matches := []domain.MatchResult{
		{GrammarID: "vote", Captures: []string{"20", "larry"}, UserIndex: 1},
		{GrammarID: "score", Captures: []string{"20", "larry"}, UserIndex: 1},
	}
	msg := &domain.InboundMessage{ID: "om_1", SenderID: "ou_bob"}
	require.NoError(t, d.Dispatch(context.Background(), matches, testRecord("oc_1"), msg))

	assert.Equal(t, []string{"score:20", "vote:20"}, calls)
}

func TestDispatch_FailureIsolation(t *testing.T) {
	d := newTestDispatcher(t)
	var ran []string
	require.NoError(t, d.Register("ping", func(ctx context.Context, req *Request) error {
		panic("boom")
	}))
	require.NoError(t, d.Register("help", func(ctx context.Context, req *Request) error {
		ran = append(ran, "help")
		return errors.New("help failed")
	}))
	require.NoError(t, d.Register("kick", func(ctx context.Context, req *Request) error {
		ran = append(ran, "kick")
		return nil
	}))

	matches := []domain.MatchResult{{GrammarID: "ping"}, {GrammarID: "help"}, {GrammarID: "kick"}}
	err := d.Dispatch(context.Background(), matches, testRecord("oc_1"), &domain.InboundMessage{})

	assert.Equal(t, []string{"help", "kick"}, ran)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "handler panic: boom")
	assert.Contains(t, err.Error(), "help failed")
}

func TestDispatch_HandlersGetSnapshots(t *testing.T) {
	d := newTestDispatcher(t)
	require.NoError(t, d.Register("ping", func(ctx context.Context, req *Request) error {
		req.Record.Muted = false
		req.Record.Pinned["x"] = domain.Pin{Text: "x"}
		return nil
	}))

	rec := testRecord("oc_1")
	msg := &domain.InboundMessage{SenderID: "ou_bob", Attachments: []domain.Attachment{{Kind: "image", Key: "img_1"}}}
	require.NoError(t, d.Dispatch(context.Background(), []domain.MatchResult{{GrammarID: "ping"}}, rec, msg))

	assert.True(t, rec.Muted)
	assert.Empty(t, rec.Pinned)
}

func TestRegister_UnknownGrammar(t *testing.T) {
	d := newTestDispatcher(t)
	assert.Error(t, d.Register("nope", func(ctx context.Context, req *Request) error { return nil }))
	assert.Contains(t, d.Unhandled(), "ping")
}
