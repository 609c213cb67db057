package websocket

import (
	"encoding/json"

	"support-chat-backend/internal/dto"
)

// AdminRoom is the distinguished room every agent console joins. It receives
// conversation-list snapshots, announcements and operational notifications.
const AdminRoom = "admin"

// Events accepted from clients.
const (
	EventStartSupport      = "start-support"
	EventJoinConversation  = "join-conversation"
	EventSendMessage       = "send-message"
	EventTyping            = "typing"
	EventCloseConversation = "close-conversation"
	EventCheckActive       = "check-active-conversation"
	EventJoinAdminRoom     = "join-admin-room"
	EventGetConversations  = "get-conversations"
)

// Events pushed to clients.
const (
	EventSupportStarted       = "support-started"
	EventNewMessage           = "new-message"
	EventConversationMessages = "conversation-messages"
	EventConversationsList    = "conversations-list"
	EventNewConversation      = "new-conversation"
	EventConversationUpdated  = "conversation-updated"
	EventConversationClosed   = "conversation-closed"
	EventUserTyping           = "user-typing"
	EventOnlineUsers          = "online-users-update"
	EventNewNotification      = "new-notification"
	EventAdminRoomJoined      = "admin-room-joined"
	EventActiveConversation   = "active-conversation"
	EventError                = "error"
)

// Envelope is the wire frame for inbound events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutEvent is the wire frame for outbound events.
type OutEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type StartSupportPayload struct {
	GuestName      string `json:"guestName,omitempty"`
	GuestEmail     string `json:"guestEmail,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type CloseConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type CheckActivePayload struct {
	ConversationID string `json:"conversationId"`
}

type SupportStartedPayload struct {
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
}

type ConversationMessagesPayload struct {
	ConversationID string        `json:"conversationId"`
	Messages       []dto.Message `json:"messages"`
}

type ConversationsListPayload struct {
	Conversations []dto.Conversation `json:"conversations"`
}

type ConversationClosedPayload struct {
	ConversationID string `json:"conversationId"`
}

type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
	SenderName     string `json:"senderName"`
	IsTyping       bool   `json:"isTyping"`
}

type ActiveConversationPayload struct {
	ConversationID string `json:"conversationId"`
	IsActive       bool   `json:"isActive"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
