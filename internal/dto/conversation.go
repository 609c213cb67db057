package dto

import "support-chat-backend/internal/model"

type Conversation struct {
	ConversationID     string `json:"conversationId"`
	ParticipantUserID  string `json:"participantUserId,omitempty"`
	GuestName          string `json:"guestName,omitempty"`
	GuestEmail         string `json:"guestEmail,omitempty"`
	AvatarURL          string `json:"avatarUrl,omitempty"`
	Status             string `json:"status"`
	AssignedAgentID    string `json:"assignedAgentId,omitempty"`
	LastMessagePreview string `json:"lastMessagePreview,omitempty"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
}

type Message struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
	SenderID       string `json:"senderId,omitempty"`
	SenderName     string `json:"senderName"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

func FromConversationItem(item model.ConversationItem) Conversation {
	return Conversation{
		ConversationID:     item.ConversationID,
		ParticipantUserID:  item.ParticipantUserID,
		GuestName:          item.GuestName,
		GuestEmail:         item.GuestEmail,
		AvatarURL:          item.AvatarURL,
		Status:             string(item.Status),
		AssignedAgentID:    item.AssignedAgentID,
		LastMessagePreview: item.LastMessagePreview,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}
}

func FromConversationItems(items []model.ConversationItem) []Conversation {
	conversations := make([]Conversation, 0, len(items))
	for _, item := range items {
		conversations = append(conversations, FromConversationItem(item))
	}
	return conversations
}

func FromMessageItem(item model.MessageItem) Message {
	return Message{
		MessageID:      item.MessageID,
		ConversationID: item.ConversationID,
		SenderType:     item.SenderType,
		SenderID:       item.SenderID,
		SenderName:     item.SenderName,
		Content:        item.Content,
		CreatedAt:      item.CreatedAt,
	}
}

func FromMessageItems(items []model.MessageItem) []Message {
	messages := make([]Message, 0, len(items))
	for _, item := range items {
		messages = append(messages, FromMessageItem(item))
	}
	return messages
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
