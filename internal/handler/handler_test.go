package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegister_CoversDefaultGrammars(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.disp.Unhandled())
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "ping"))
	assert.Equal(t, []string{"pong"}, f.platform.texts())
	assert.Equal(t, "om_bot", f.record(t).LastBotMessageID)
}

func TestHelp(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.say(t, "ou_bob", "help"))
	list := f.platform.last().Text
	assert.Contains(t, list, "Members")
	assert.Contains(t, list, "kick <member> [seconds]")
	assert.NotContains(t, list, "broadcast", "sudo commands are hidden from others")

	require.NoError(t, f.say(t, "ou_bob", "help kick"))
	detail := f.platform.last().Text
	assert.Contains(t, detail, "Usage: bot kick <member> [seconds]")
	assert.Contains(t, detail, "bot kick larry 25")

	require.NoError(t, f.say(t, "ou_bob", "help frobnicate"))
	assert.Contains(t, f.platform.last().Text, `No command named "frobnicate"`)
}

func TestMuteUnmute(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.record(t).Muted)

	require.NoError(t, f.say(t, "ou_bob", "unmute"))
	assert.False(t, f.record(t).Muted)
	require.NoError(t, f.say(t, "ou_bob", "mute"))
	assert.True(t, f.record(t).Muted)
}

func TestAliasRoundTrip(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.say(t, "ou_bob", "alias lars to larry"))
	assert.Equal(t, "larry", f.record(t).Aliases["lars"])
	assert.Equal(t, "OK, Larry Page is now also lars.", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "++ lars"))
	assert.Equal(t, "Larry Page: 1", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "alias alice to bob"))
	assert.Contains(t, f.platform.last().Text, "already a member name")

	require.NoError(t, f.say(t, "ou_bob", "unalias lars"))
	assert.NotContains(t, f.record(t).Aliases, "lars")
	require.NoError(t, f.say(t, "ou_bob", "unalias lars"))
	assert.Equal(t, `There is no alias "lars".`, f.platform.last().Text)
}

func TestKick_RequiresPrivilege(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "kick alice"))
	assert.Empty(t, f.platform.removed)
	assert.Empty(t, f.platform.texts())
}

func TestKick_AddsBackAfterDelay(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_alice", "kick bob 1"))

	assert.Equal(t, []string{"ou_bob"}, f.platform.removed)
	assert.Equal(t, "Bye Bob, see you in 1s!", f.platform.last().Text)
	assert.Eventually(t, func() bool {
		return len(f.platform.addedMembers()) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestKick_CloseCancelsReAdd(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, testOwner, "kick larry 25"))
	assert.Equal(t, []string{"ou_larry"}, f.platform.removed)

	f.handlers.Close()
	assert.Empty(t, f.platform.addedMembers())
}

func TestKick_RemoveFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.platform.failRemove = errors.New("no permission")

	err := f.say(t, "ou_alice", "kick bob")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no permission")
	assert.Equal(t, "Could not remove Bob.", f.platform.last().Text)
	assert.Empty(t, f.platform.removed)
}

func TestEveryone(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "everyone lunch is here"))

	msg := f.platform.last()
	assert.Equal(t, "lunch is here", msg.Text)
	assert.Equal(t, []domain.Member{
		{UserID: "ou_alice", Name: "Alice Liddell"},
		{UserID: "ou_larry", Name: "Larry Page"},
	}, msg.Mentions)
}

func TestScoresAndVotes(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.say(t, "ou_bob", "score 20 larry"))
	assert.Equal(t, "Larry Page now has 20 points.", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "-- larry"))
	require.NoError(t, f.say(t, "ou_bob", "> alice"))
	require.NoError(t, f.say(t, "ou_bob", "+5 alice"))
	require.NoError(t, f.say(t, "ou_alice", "++ me"))
	assert.Equal(t, "Nice try.", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "score larry"))
	assert.Equal(t, "Larry Page has 19 points.", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "scores"))
	assert.Equal(t, "1. Larry Page: 19\n2. Alice Liddell: 6", f.platform.last().Text)
}

func TestEventLifecycle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.say(t, "ou_alice", "event standup at 09:30 remind 10m every day"))
	ev := f.record(t).Events["standup"]
	require.NotNil(t, ev)
	assert.Equal(t, testNow.Add(30*time.Minute), ev.At)
	assert.Equal(t, testNow.Add(20*time.Minute), ev.RemindAt)
	assert.Equal(t, 24*time.Hour, ev.Every)
	assert.Equal(t, "ou_alice", ev.Owner)

	require.NoError(t, f.say(t, "ou_bob", "rsvp yes standup"))
	require.NoError(t, f.say(t, "ou_larry", "rsvp no standup"))
	ev = f.record(t).Events["standup"]
	assert.Equal(t, []domain.RSVP{{UserID: "ou_bob", Name: "Bob"}}, ev.Going)
	assert.Equal(t, []domain.RSVP{{UserID: "ou_larry", Name: "Larry Page"}}, ev.NotGoing)

	require.NoError(t, f.say(t, "ou_bob", "events"))
	assert.Equal(t, "- standup: Mon Mar 2 09:30 (every 24h0m0s), going: Bob", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "cancel standup"))
	assert.Contains(t, f.record(t).Events, "standup", "only the creator or an admin may cancel")

	require.NoError(t, f.say(t, "ou_alice", "cancel standup"))
	assert.NotContains(t, f.record(t).Events, "standup")
	assert.Equal(t, "Cancelled standup.", f.platform.last().Text)
}

func TestRemind(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "remind alice in 10m to submit the report"))

	ev := f.record(t).Events["submit the report"]
	require.NotNil(t, ev)
	assert.True(t, ev.Reminder)
	assert.Equal(t, "ou_alice", ev.Owner)
	assert.Equal(t, testNow.Add(10*time.Minute), ev.At)
	assert.Equal(t, "OK, I'll remind Alice Liddell at Mon Mar 2 09:10.", f.platform.last().Text)

	require.NoError(t, f.say(t, "ou_bob", "rsvp yes submit the report"))
	assert.Equal(t, "There is no event called submit the report.", f.platform.last().Text)
}

func TestRemind_RefusesTakenTitle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_alice", "event standup in 1h"))

	require.NoError(t, f.say(t, "ou_bob", "remind me in 10m to standup"))
	assert.Equal(t, "There is already an event called standup.", f.platform.last().Text)

	ev := f.record(t).Events["standup"]
	require.NotNil(t, ev)
	assert.False(t, ev.Reminder)
	assert.Equal(t, "ou_alice", ev.Owner)
}

func TestRemind_RejectsPastTime(t *testing.T) {
	f := newFixture(t)
	rec := f.record(t)

	err := f.handlers.Remind(context.Background(), &usecase.Request{
		Match: domain.MatchResult{
			GrammarID: "remind",
			Captures:  []string{"alice", "at 2020-01-01 10:00", "stretch"},
			UserIndex: 0,
			MemberKey: "alice",
			MemberID:  "ou_alice",
		},
		Record:   rec,
		SenderID: "ou_bob",
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Flush(context.Background()))

	assert.Equal(t, "That time has already passed.", f.platform.last().Text)
	assert.NotContains(t, f.record(t).Events, "stretch")
}

func TestFollowAndSubscribe(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.say(t, "ou_bob", "follow @GoLang"))
	require.NoError(t, f.say(t, "ou_bob", "follow golang"))
	assert.Equal(t, "Already following golang.", f.platform.last().Text)
	assert.Equal(t, "", f.record(t).Following["golang"])

	const url = "https://go.dev/blog/feed.atom"
	require.NoError(t, f.say(t, "ou_bob", "subscribe "+url))
	assert.Equal(t, testNow, f.record(t).Feeds[url])

	require.NoError(t, f.say(t, "ou_bob", "feeds"))
	assert.Contains(t, f.platform.last().Text, "Accounts: golang")
	assert.Contains(t, f.platform.last().Text, "- "+url)

	require.NoError(t, f.say(t, "ou_bob", "unfollow golang"))
	require.NoError(t, f.say(t, "ou_bob", "unsubscribe "+url))
	rec := f.record(t)
	assert.Empty(t, rec.Following)
	assert.Empty(t, rec.Feeds)
}

func TestSubscribe_UnreadableFeed(t *testing.T) {
	f := newFixture(t)
	f.feeds.err = errors.New("404")

	err := f.say(t, "ou_bob", "subscribe https://example.com/nope")
	assert.Error(t, err)
	assert.Empty(t, f.record(t).Feeds)
	assert.Equal(t, "I couldn't read https://example.com/nope.", f.platform.last().Text)
}

func TestPins(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.say(t, "ou_bob", "pin"))
	assert.Equal(t, "There is nothing to pin.", f.platform.last().Text)

	rec := f.record(t)
	rec.LastMessage = &domain.MessageSnapshot{ID: "om_0", SenderID: "ou_alice", Body: "meet at the usual place", At: testNow}
	f.records.records[testChat] = rec

	require.NoError(t, f.say(t, "ou_bob", "pin"))
	pin, ok := f.record(t).Pinned["meet at the usual place"]
	require.True(t, ok)
	assert.Equal(t, "ou_alice", pin.SenderID)

	require.NoError(t, f.say(t, "ou_bob", "pin wifi password is hunter2"))
	require.NoError(t, f.say(t, "ou_bob", "pinned"))
	assert.Contains(t, f.platform.last().Text, "- wifi password is hunter2 (Bob)")

	require.NoError(t, f.say(t, "ou_bob", "unpin wifi password is hunter2"))
	assert.Len(t, f.record(t).Pinned, 1)
}

func TestTab(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "tab 12.50"))
	require.NoError(t, f.say(t, "ou_bob", "tab -2"))
	assert.Equal(t, "Tab: 10.50", f.platform.last().Text)
	require.NoError(t, f.say(t, "ou_bob", "tab"))
	assert.Equal(t, "Tab: 10.50", f.platform.last().Text)
	require.NoError(t, f.say(t, "ou_bob", "tab reset"))
	assert.Zero(t, f.record(t).Tab)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "ping"))
	require.NoError(t, f.say(t, "ou_bob", "ping"))
	require.NoError(t, f.say(t, "ou_bob", "stats ping"))
	assert.Equal(t, "Ping was used 2 times.", f.platform.last().Text)
	require.NoError(t, f.say(t, "ou_bob", "stats"))
	assert.Equal(t, "Commands were used 4 times.", f.platform.last().Text)
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_bob", "ask what is the capital of France?"))
	assert.Equal(t, "what is the capital of France?", f.ask.question)
	assert.Equal(t, "Paris.", f.platform.last().Text)
}

func TestTitle_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.say(t, "ou_alice", "title Hijacked"))
	assert.Empty(t, f.platform.titles)

	require.NoError(t, f.say(t, testOwner, "title Friday lunch club"))
	assert.Equal(t, []string{"Friday lunch club"}, f.platform.titles)
	assert.Equal(t, "Friday lunch club", f.record(t).Name)
	assert.Equal(t, []string{"om_in:DONE"}, f.platform.reactions)
}

func TestBroadcast_ReportsSlowConversations(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"oc_2", "oc_3"} {
		f.records.records[id] = domain.NewConversationRecord(id)
	}
	f.platform.blocked = map[string]bool{"oc_3": true}

	require.NoError(t, f.say(t, testOwner, "broadcast maintenance tonight"))
	texts := f.platform.texts()
	assert.Contains(t, texts, "maintenance tonight")
	assert.Equal(t, "Sent to 2 of 3 conversations.", f.platform.last().Text)
}
