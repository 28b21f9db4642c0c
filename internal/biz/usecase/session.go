package usecase

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

// ErrNoSession is returned while no platform session is connected
var ErrNoSession = errors.New("no platform session")

type platformBox struct {
	repo.PlatformRepo
}

// Session holds the active platform session. Handlers, the refresher and the
// ticker receive the holder instead of a connection, so a reconnect only
// needs a Swap.
type Session struct {
	current atomic.Pointer[platformBox]
	swaps   atomic.Int64
}

// NewSession creates a session holder, optionally with an initial connection
func NewSession(platform repo.PlatformRepo) *Session {
	s := &Session{}
	if platform != nil {
		s.current.Store(&platformBox{platform})
	}
	return s
}

// Swap replaces the active connection and returns the previous one
func (s *Session) Swap(platform repo.PlatformRepo) repo.PlatformRepo {
	var next *platformBox
	if platform != nil {
		next = &platformBox{platform}
	}
	s.swaps.Add(1)
	if prev := s.current.Swap(next); prev != nil {
		return prev.PlatformRepo
	}
	return nil
}

// Generation counts Swap calls
func (s *Session) Generation() int64 {
	return s.swaps.Load()
}

// Connected reports whether a connection is set
func (s *Session) Connected() bool {
	return s.current.Load() != nil
}

func (s *Session) platform() (repo.PlatformRepo, error) {
	box := s.current.Load()
	if box == nil {
		return nil, ErrNoSession
	}
	return box.PlatformRepo, nil
}

// SendText implements repo.PlatformRepo
func (s *Session) SendText(ctx context.Context, chatID, text string) (string, error) {
	p, err := s.platform()
	if err != nil {
		return "", err
	}
	return p.SendText(ctx, chatID, text)
}

// SendTextWithMentions implements repo.PlatformRepo
func (s *Session) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Member) (string, error) {
	p, err := s.platform()
	if err != nil {
		return "", err
	}
	return p.SendTextWithMentions(ctx, chatID, text, mentions)
}

// AddReaction implements repo.PlatformRepo
func (s *Session) AddReaction(ctx context.Context, msgID, reactionType string) error {
	p, err := s.platform()
	if err != nil {
		return err
	}
	return p.AddReaction(ctx, msgID, reactionType)
}

// GetChatInfo implements repo.PlatformRepo
func (s *Session) GetChatInfo(ctx context.Context, chatID string) (*repo.ChatInfo, error) {
	p, err := s.platform()
	if err != nil {
		return nil, err
	}
	return p.GetChatInfo(ctx, chatID)
}

// GetChatMembers implements repo.PlatformRepo
func (s *Session) GetChatMembers(ctx context.Context, chatID string) ([]domain.Member, error) {
	p, err := s.platform()
	if err != nil {
		return nil, err
	}
	return p.GetChatMembers(ctx, chatID)
}

// GetMemberName implements repo.PlatformRepo
func (s *Session) GetMemberName(ctx context.Context, userID string) (string, error) {
	p, err := s.platform()
	if err != nil {
		return "", err
	}
	return p.GetMemberName(ctx, userID)
}

// AddMember implements repo.PlatformRepo
func (s *Session) AddMember(ctx context.Context, chatID, userID string) error {
	p, err := s.platform()
	if err != nil {
		return err
	}
	return p.AddMember(ctx, chatID, userID)
}

// RemoveMember implements repo.PlatformRepo
func (s *Session) RemoveMember(ctx context.Context, chatID, userID string) error {
	p, err := s.platform()
	if err != nil {
		return err
	}
	return p.RemoveMember(ctx, chatID, userID)
}

// SetTitle implements repo.PlatformRepo
func (s *Session) SetTitle(ctx context.Context, chatID, title string) error {
	p, err := s.platform()
	if err != nil {
		return err
	}
	return p.SetTitle(ctx, chatID, title)
}

var _ repo.PlatformRepo = (*Session)(nil)
