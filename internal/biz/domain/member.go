package domain

import (
	"fmt"
	"strings"
)

// Member represents a chat member (value object)
type Member struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
}

// FormatDisplay formats for display
func (m *Member) FormatDisplay() string {
	return fmt.Sprintf("%s (user_id: %s)", m.Name, m.UserID)
}

// FirstName returns the lowercase first word of the display name
func (m *Member) FirstName() string {
	fields := strings.Fields(strings.ToLower(m.Name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ChatMetadata is the platform-owned part of a conversation record.
// It is fetched by the background refresh and merged over the stored record.
type ChatMetadata struct {
	ChatID  string
	Name    string
	IsGroup bool
	Members []Member
	Admins  []string
	Color   string
	Emoji   string
	Photo   string
}

// SelfKey is the member reference that always resolves to the sender
const SelfKey = "me"

// BuildDirectory assigns canonical keys to members.
// The key is the lowercase first name; on a collision the full lowercase name
// is used, and if that is also taken the first name gets an id suffix.
// SelfKey is never assigned.
// Members are processed in the given order, so callers should pass a stable order.
func BuildDirectory(members []Member) (keys map[string]string, names map[string]string) {
	keys = make(map[string]string, len(members))
	names = make(map[string]string, len(members))

	for _, m := range members {
		if m.UserID == "" {
			continue
		}
		names[m.UserID] = m.Name

		first := m.FirstName()
		if first == "" {
			first = strings.ToLower(m.UserID)
		}
		candidates := []string{
			first,
			strings.Join(strings.Fields(strings.ToLower(m.Name)), " "),
			first + "-" + shortID(m.UserID),
		}
		for _, key := range candidates {
			if key == "" || key == SelfKey {
				continue
			}
			if owner, taken := keys[key]; !taken || owner == m.UserID {
				keys[key] = m.UserID
				break
			}
		}
	}
	return keys, names
}

func shortID(id string) string {
	id = strings.ToLower(id)
	if len(id) > 4 {
		return id[len(id)-4:]
	}
	return id
}
