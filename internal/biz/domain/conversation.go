package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PropScores is the property bag key of the score table
const PropScores = "scores"

// Pin is a pinned message
type Pin struct {
	Text     string    `json:"text"`
	SenderID string    `json:"sender_id"`
	PinnedAt time.Time `json:"pinned_at"`
}

// MessageSnapshot is the last inbound message seen in a conversation
type MessageSnapshot struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	At       time.Time `json:"at"`
}

// ConversationRecord is the persisted state of one conversation.
// It is always read and written as one unit; the store has no field-level operations.
type ConversationRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"is_group"`

	// Members maps canonical lowercase names to member ids
	Members map[string]string `json:"members"`
	// Names maps member ids to display names
	Names map[string]string `json:"names"`
	// Aliases maps alias text to a canonical member key
	Aliases map[string]string `json:"aliases"`
	Admins  []string          `json:"admins"`

	Muted bool    `json:"muted"`
	Tab   float64 `json:"tab"`
	Color string  `json:"color,omitempty"`
	Emoji string  `json:"emoji,omitempty"`
	Photo string  `json:"photo,omitempty"`

	Pinned    map[string]Pin             `json:"pinned"`
	Events    map[string]*ScheduledEvent `json:"events"`
	Following map[string]string          `json:"following"` // handle -> last seen item id
	Feeds     map[string]time.Time       `json:"feeds"`     // url -> last checked

	LastBotMessageID string           `json:"last_bot_message_id,omitempty"`
	LastMessage      *MessageSnapshot `json:"last_message,omitempty"`

	// Props holds command-specific state such as scores
	Props map[string]json.RawMessage `json:"props"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationRecord creates a record with bot-owned defaults
func NewConversationRecord(id string) *ConversationRecord {
	now := time.Now()
	rec := &ConversationRecord{
		ID:        id,
		Muted:     true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec.ensureMaps()
	return rec
}

func (r *ConversationRecord) ensureMaps() {
	if r.Members == nil {
		r.Members = make(map[string]string)
	}
	if r.Names == nil {
		r.Names = make(map[string]string)
	}
	if r.Aliases == nil {
		r.Aliases = make(map[string]string)
	}
	if r.Pinned == nil {
		r.Pinned = make(map[string]Pin)
	}
	if r.Events == nil {
		r.Events = make(map[string]*ScheduledEvent)
	}
	if r.Following == nil {
		r.Following = make(map[string]string)
	}
	if r.Feeds == nil {
		r.Feeds = make(map[string]time.Time)
	}
	if r.Props == nil {
		r.Props = make(map[string]json.RawMessage)
	}
}

// Normalize fills nil maps, e.g. after decoding an older record
func (r *ConversationRecord) Normalize() {
	r.ensureMaps()
}

// Clone returns a deep copy of the record
func (r *ConversationRecord) Clone() *ConversationRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Members = copyMap(r.Members)
	c.Names = copyMap(r.Names)
	c.Aliases = copyMap(r.Aliases)
	c.Admins = append([]string(nil), r.Admins...)
	c.Pinned = copyMap(r.Pinned)
	c.Following = copyMap(r.Following)
	c.Feeds = copyMap(r.Feeds)

	c.Events = make(map[string]*ScheduledEvent, len(r.Events))
	for k, ev := range r.Events {
		c.Events[k] = ev.Clone()
	}

	c.Props = make(map[string]json.RawMessage, len(r.Props))
	for k, v := range r.Props {
		c.Props[k] = append(json.RawMessage(nil), v...)
	}

	if r.LastMessage != nil {
		snap := *r.LastMessage
		c.LastMessage = &snap
	}
	c.ensureMaps()
	return &c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NameKeys returns every matchable name: canonical member keys and alias keys
func (r *ConversationRecord) NameKeys() []string {
	keys := make([]string, 0, len(r.Members)+len(r.Aliases))
	for k := range r.Members {
		keys = append(keys, k)
	}
	for k := range r.Aliases {
		if _, dup := r.Members[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// KeyForID finds the canonical key of a member id
func (r *ConversationRecord) KeyForID(userID string) (string, bool) {
	for k, id := range r.Members {
		if id == userID {
			return k, true
		}
	}
	return "", false
}

// ResolveName resolves a member name or alias to its canonical key and id
func (r *ConversationRecord) ResolveName(name string) (key, userID string, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if id, found := r.Members[name]; found {
		return name, id, true
	}
	if canonical, found := r.Aliases[name]; found {
		if id, found := r.Members[canonical]; found {
			return canonical, id, true
		}
	}
	return "", "", false
}

// DisplayName returns the display name of a member id, falling back to the id
func (r *ConversationRecord) DisplayName(userID string) string {
	if name := r.Names[userID]; name != "" {
		return name
	}
	return userID
}

// IsAdmin checks whether a member id is a conversation admin
func (r *ConversationRecord) IsAdmin(userID string) bool {
	for _, id := range r.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// SetAlias maps an alias to a canonical member key
func (r *ConversationRecord) SetAlias(alias, canonical string) error {
	alias = strings.ToLower(strings.TrimSpace(alias))
	canonical = strings.ToLower(strings.TrimSpace(canonical))
	if alias == "" || alias == SelfKey {
		return fmt.Errorf("invalid alias %q", alias)
	}
	if _, ok := r.Members[canonical]; !ok {
		return fmt.Errorf("no member %q", canonical)
	}
	if _, ok := r.Members[alias]; ok {
		return fmt.Errorf("alias %q is already a member name", alias)
	}
	r.ensureMaps()
	r.Aliases[alias] = canonical
	return nil
}

// ClearAlias removes an alias, reporting whether it existed
func (r *ConversationRecord) ClearAlias(alias string) bool {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if _, ok := r.Aliases[alias]; !ok {
		return false
	}
	delete(r.Aliases, alias)
	return true
}

// MergeMetadata overwrites the platform-owned fields with fresh metadata.
// Bot-owned fields (mute, pins, events, aliases, feeds, follows, tab, props) are untouched.
// Aliases pointing at members that left are dropped.
func (r *ConversationRecord) MergeMetadata(meta *ChatMetadata) {
	r.ensureMaps()
	if meta.Name != "" {
		r.Name = meta.Name
	}
	r.IsGroup = meta.IsGroup

	members := append([]Member(nil), meta.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })

	// Members that already hold a key go first so their keys stay stable
	ordered := make([]Member, 0, len(members))
	present := make(map[string]Member, len(members))
	for _, m := range members {
		present[m.UserID] = m
	}
	existing := make([]string, 0, len(r.Members))
	for k := range r.Members {
		existing = append(existing, k)
	}
	sort.Strings(existing)
	placed := make(map[string]bool, len(members))
	for _, k := range existing {
		id := r.Members[k]
		if m, ok := present[id]; ok && !placed[id] {
			ordered = append(ordered, m)
			placed[id] = true
		}
	}
	for _, m := range members {
		if !placed[m.UserID] {
			ordered = append(ordered, m)
			placed[m.UserID] = true
		}
	}

	r.Members, r.Names = BuildDirectory(ordered)
	for alias, canonical := range r.Aliases {
		if _, ok := r.Members[canonical]; !ok {
			delete(r.Aliases, alias)
		}
	}

	if len(meta.Admins) > 0 {
		r.Admins = append([]string(nil), meta.Admins...)
	}
	if meta.Color != "" {
		r.Color = meta.Color
	}
	if meta.Emoji != "" {
		r.Emoji = meta.Emoji
	}
	if meta.Photo != "" {
		r.Photo = meta.Photo
	}
	r.UpdatedAt = time.Now()
}

// SetProp stores a JSON-encoded value in the property bag
func (r *ConversationRecord) SetProp(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode property %s: %w", key, err)
	}
	r.ensureMaps()
	r.Props[key] = data
	return nil
}

// Prop decodes a property bag value into out, reporting whether it was present
func (r *ConversationRecord) Prop(key string, out any) (bool, error) {
	raw, ok := r.Props[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("failed to decode property %s: %w", key, err)
	}
	return true, nil
}
