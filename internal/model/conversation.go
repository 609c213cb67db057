package model

import "fmt"

type ConversationStatus string

const (
	ConversationStatusWaiting ConversationStatus = "waiting"
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusClosed  ConversationStatus = "closed"
)

// Open reports whether the conversation can still accept messages.
func (s ConversationStatus) Open() bool {
	return s == ConversationStatusWaiting || s == ConversationStatusActive
}

func MessagePK(conversationID, messageID string) string {
	return fmt.Sprintf("%s#%s", conversationID, messageID)
}

type ConversationItem struct {
	ConversationID     string             `dynamodbav:"conversationId"`
	ParticipantUserID  string             `dynamodbav:"participantUserId,omitempty"`
	GuestName          string             `dynamodbav:"guestName,omitempty"`
	GuestEmail         string             `dynamodbav:"guestEmail,omitempty"`
	AvatarURL          string             `dynamodbav:"avatarUrl,omitempty"`
	Status             ConversationStatus `dynamodbav:"status"`
	AssignedAgentID    string             `dynamodbav:"assignedAgentId,omitempty"`
	LastMessagePreview string             `dynamodbav:"lastMessagePreview,omitempty"`
	CreatedAt          string             `dynamodbav:"createdAt"`
	UpdatedAt          string             `dynamodbav:"updatedAt"`
}

// ParticipantName is the display label for the customer side of the
// conversation. Anonymous participants without a captured name fall back to
// a generic label.
func (c ConversationItem) ParticipantName() string {
	if c.GuestName != "" {
		return c.GuestName
	}
	return "Guest"
}

const (
	SenderTypeUser   = "user"
	SenderTypeAdmin  = "admin"
	SenderTypeSystem = "system"
)

type MessageItem struct {
	PK             string `dynamodbav:"pk"`
	ConversationID string `dynamodbav:"conversationId"`
	MessageID      string `dynamodbav:"messageId"`
	SenderType     string `dynamodbav:"senderType"`
	SenderID       string `dynamodbav:"senderId,omitempty"`
	SenderName     string `dynamodbav:"senderName"`
	Content        string `dynamodbav:"content"`
	CreatedAt      string `dynamodbav:"createdAt"`
}
