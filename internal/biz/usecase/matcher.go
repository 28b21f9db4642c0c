package usecase

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

const patternCacheSize = 4096

// MatcherConfig contains matcher configuration
type MatcherConfig struct {
	OwnerID     string
	Contextless bool // match anywhere in the text instead of at the start
}

// Matcher tests trigger-stripped command text against the registry
type Matcher struct {
	registry  *Registry
	statsRepo repo.StatsRepo
	config    MatcherConfig
	logger    *zap.Logger

	patterns *lru.Cache[string, *regexp.Regexp]
	now      func() time.Time
}

// NewMatcher creates a new matcher
func NewMatcher(registry *Registry, statsRepo repo.StatsRepo, config MatcherConfig, logger *zap.Logger) *Matcher {
	patterns, err := lru.New[string, *regexp.Regexp](patternCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Matcher{
		registry:  registry,
		statsRepo: statsRepo,
		config:    config,
		logger:    logger.Named("matcher"),
		patterns:  patterns,
		now:       time.Now,
	}
}

// Match returns every grammar that matches the command text, in registry order.
// Sudo grammars are skipped unless the sender is the owner. Each match is recorded
// in the usage statistics.
func (m *Matcher) Match(ctx context.Context, rec *domain.ConversationRecord, senderID, text string) []domain.MatchResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var alternation string
	var results []domain.MatchResult
	for _, g := range m.registry.Grammars() {
		if g.Sudo && senderID != m.config.OwnerID {
			continue
		}

		var re *regexp.Regexp
		if g.UserInput.Accepts {
			if alternation == "" {
				alternation = nameAlternation(rec.NameKeys())
			}
			re = m.splice(g, alternation)
		} else if m.config.Contextless {
			re = g.contextual
		} else {
			re = g.anchored
		}
		if re == nil {
			continue
		}

		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		result := domain.MatchResult{
			GrammarID: g.ID,
			Captures:  append([]string(nil), match[1:]...),
			UserIndex: -1,
		}
		if g.UserInput.Accepts {
			result.UserIndex = re.SubexpIndex(userGroup) - 1
			if !m.resolveUser(rec, senderID, g, &result) {
				continue
			}
		}

		m.record(ctx, rec.ID, senderID, g.ID)
		results = append(results, result)
	}
	return results
}

// splice returns the pattern of a user grammar for a name alternation,
// compiling it once per distinct name set
func (m *Matcher) splice(g *CompiledGrammar, alternation string) *regexp.Regexp {
	key := g.ID + "\x00" + boolKey(m.config.Contextless) + "\x00" + alternation
	if re, ok := m.patterns.Get(key); ok {
		return re
	}
	re, err := regexp.Compile(g.source(alternation, m.config.Contextless))
	if err != nil {
		m.logger.Warn("Failed to splice grammar", zap.String("grammar", g.ID), zap.Error(err))
		return nil
	}
	m.patterns.Add(key, re)
	return re
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// resolveUser maps the user slot to a canonical key and member id.
// "me" resolves to the sender; aliases resolve to their canonical key.
func (m *Matcher) resolveUser(rec *domain.ConversationRecord, senderID string, g *CompiledGrammar, result *domain.MatchResult) bool {
	if result.UserIndex < 0 || result.UserIndex >= len(result.Captures) {
		return false
	}
	raw := strings.ToLower(strings.TrimSpace(result.Captures[result.UserIndex]))
	if raw == "" {
		return g.UserInput.Optional
	}

	var key, id string
	var ok bool
	if raw == domain.SelfKey {
		key, ok = rec.KeyForID(senderID)
		id = senderID
	} else {
		key, id, ok = rec.ResolveName(raw)
	}
	if !ok {
		if g.UserInput.Optional {
			result.Captures[result.UserIndex] = ""
			return true
		}
		return false
	}

	result.Captures[result.UserIndex] = key
	result.MemberKey = key
	result.MemberID = id
	return true
}

func (m *Matcher) record(ctx context.Context, conversationID, senderID, grammarID string) {
	if m.statsRepo == nil {
		return
	}
	err := m.statsRepo.Record(ctx, &domain.UsageRecord{
		ID:             uuid.NewString(),
		GrammarID:      grammarID,
		ConversationID: conversationID,
		SenderID:       senderID,
		UsedAt:         m.now(),
	})
	if err != nil {
		m.logger.Warn("Failed to record usage", zap.String("grammar", grammarID), zap.Error(err))
	}
}
