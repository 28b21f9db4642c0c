package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

// ExampleMembers is the directory the documented examples are written against
var ExampleMembers = []domain.Member{
	{UserID: "ou_larry", Name: "Larry Page"},
	{UserID: "ou_alice", Name: "Alice Liddell"},
	{UserID: "ou_bob", Name: "Bob"},
}

// ExampleFailure is a documented example its own grammar does not match
type ExampleFailure struct {
	GrammarID string
	Example   string
}

// CheckExamples matches every documented example, sent by the owner of a
// conversation with ExampleMembers, and returns those their grammar misses
func CheckExamples(ctx context.Context, registry *Registry, contextless bool) []ExampleFailure {
	owner := ExampleMembers[0].UserID
	rec := domain.NewConversationRecord("oc_examples")
	rec.MergeMetadata(&domain.ChatMetadata{
		ChatID:  rec.ID,
		IsGroup: true,
		Members: ExampleMembers,
	})
	matcher := NewMatcher(registry, nil, MatcherConfig{OwnerID: owner, Contextless: contextless}, zap.NewNop())

	var failures []ExampleFailure
	for _, g := range registry.Grammars() {
		for _, example := range g.Examples {
			matched := false
			for _, m := range matcher.Match(ctx, rec, owner, example) {
				if m.GrammarID == g.ID && (m.UserIndex < 0 || m.MemberID != "" || m.Arg(m.UserIndex) == "") {
					matched = true
					break
				}
			}
			if !matched {
				failures = append(failures, ExampleFailure{GrammarID: g.ID, Example: example})
			}
		}
	}
	return failures
}
