package domain

import "time"

// Attachment is a non-text part of a message
type Attachment struct {
	Kind string // image, file, ...
	Key  string // platform resource key
}

// InboundMessage represents a message received from the platform
type InboundMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Body           string
	Attachments    []Attachment
	MentionsBot    bool
	IsGroup        bool
	CreateTime     time.Time
}

// Snapshot converts the message to the form stored on the conversation record
func (m *InboundMessage) Snapshot() *MessageSnapshot {
	return &MessageSnapshot{
		ID:       m.ID,
		SenderID: m.SenderID,
		Body:     m.Body,
		At:       m.CreateTime,
	}
}

// UsageRecord is one recorded command use
type UsageRecord struct {
	ID             string    `json:"id"`
	GrammarID      string    `json:"grammar_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	UsedAt         time.Time `json:"used_at"`
}

// FeedItem is one entry of a polled feed or account timeline
type FeedItem struct {
	ID        string
	Title     string
	Link      string
	Published time.Time
}
