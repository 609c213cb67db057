package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/model"
	"support-chat-backend/utils"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeForbidden  ErrorCode = "forbidden"
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeConflict   ErrorCode = "conflict"
	ErrorCodeInternal   ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

const previewLength = 120

// closureNotice is appended as a system message when an agent ends support.
const closureNotice = "This conversation has been closed by our support team."

type StartSupportParams struct {
	// UserID is set for authenticated customers; guests leave it empty and
	// may supply a display name and email instead.
	UserID     string
	UserName   string
	GuestName  string
	GuestEmail string
	AvatarURL  string
	// ResumeConversationID, when it names a conversation that is still open,
	// makes the start idempotent: the existing conversation is returned
	// instead of creating a duplicate after a reconnect.
	ResumeConversationID string
}

type StartSupportResult struct {
	Conversation model.ConversationItem
	Resumed      bool
}

type AppendMessageParams struct {
	ConversationID string
	SenderType     string
	SenderID       string
	SenderName     string
	Content        string
}

type MessageResult struct {
	Conversation model.ConversationItem
	Message      model.MessageItem
}

type CloseResult struct {
	Conversation  model.ConversationItem
	SystemMessage model.MessageItem
}

// Service is the single owner of conversation lifecycle state. Status and
// assignment are only ever mutated here, one event at a time per
// conversation id.
type Service struct {
	repo Repository
	now  func() time.Time
}

func New(db *database.Database) *Service {
	return &Service{
		repo: NewDynamoRepository(db),
		now:  time.Now,
	}
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo,
		now:  now,
	}
}

// StartSupport resumes the referenced conversation when it is still open,
// otherwise creates a fresh one in waiting state. A nameless guest start is
// accepted; the display label falls back to a default.
func (s *Service) StartSupport(ctx context.Context, params StartSupportParams) (StartSupportResult, error) {
	if resumeID := strings.TrimSpace(params.ResumeConversationID); resumeID != "" {
		existing, err := s.repo.GetConversation(ctx, resumeID)
		if err == nil && existing.Status.Open() {
			return StartSupportResult{Conversation: existing, Resumed: true}, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return StartSupportResult{}, newError(ErrorCodeInternal, "failed to look up conversation", err)
		}
		// Closed or unknown: fall through and start over.
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	conversation := model.ConversationItem{
		ConversationID:    uuid.NewString(),
		ParticipantUserID: strings.TrimSpace(params.UserID),
		AvatarURL:         strings.TrimSpace(params.AvatarURL),
		Status:            model.ConversationStatusWaiting,
		CreatedAt:         nowStr,
		UpdatedAt:         nowStr,
	}

	if conversation.ParticipantUserID != "" {
		conversation.GuestName = strings.TrimSpace(params.UserName)
	} else {
		conversation.GuestName = strings.TrimSpace(params.GuestName)
		conversation.GuestEmail = normalizeEmail(params.GuestEmail)
	}

	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return StartSupportResult{}, newError(ErrorCodeInternal, "failed to create conversation", err)
	}

	return StartSupportResult{Conversation: conversation}, nil
}

// JoinConversation assigns the agent to a waiting conversation. Two agents
// racing for the same conversation resolve to a single winner; the loser
// receives the current, now-active, state rather than an error.
func (s *Service) JoinConversation(ctx context.Context, conversationID, agentID string) (model.ConversationItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "conversation id is required", nil)
	}

	nowStr := s.now().UTC().Format(time.RFC3339)

	updated, err := s.repo.AssignAgent(ctx, conversationID, agentID, nowStr)
	if err == nil {
		return updated, nil
	}

	switch {
	case errors.Is(err, ErrConflict):
		// Lost the race or conversation is not waiting; report current state.
		current, getErr := s.repo.GetConversation(ctx, conversationID)
		if getErr != nil {
			if errors.Is(getErr, ErrNotFound) {
				return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", getErr)
			}
			return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", getErr)
		}
		return current, nil
	case errors.Is(err, ErrNotFound):
		return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
	default:
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to join conversation", err)
	}
}

// AppendMessage persists a message and updates the conversation preview. A
// participant message on an active conversation regresses the status to
// waiting so the dashboard surfaces it as needing a reply again.
func (s *Service) AppendMessage(ctx context.Context, params AppendMessageParams) (MessageResult, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "message content is required", nil)
	}

	switch params.SenderType {
	case model.SenderTypeUser, model.SenderTypeAdmin, model.SenderTypeSystem:
	default:
		return MessageResult{}, newError(ErrorCodeValidation, "unknown sender type", nil)
	}

	conversation, err := s.repo.GetConversation(ctx, strings.TrimSpace(params.ConversationID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MessageResult{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return MessageResult{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}

	if conversation.Status == model.ConversationStatusClosed {
		return MessageResult{}, newError(ErrorCodeConflict, "conversation is closed", nil)
	}

	senderName := strings.TrimSpace(params.SenderName)
	if senderName == "" {
		switch params.SenderType {
		case model.SenderTypeUser:
			senderName = conversation.ParticipantName()
		case model.SenderTypeAdmin:
			senderName = "Support"
		case model.SenderTypeSystem:
			senderName = "System"
		}
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	messageID := uuid.NewString()
	message := model.MessageItem{
		PK:             model.MessagePK(conversation.ConversationID, messageID),
		ConversationID: conversation.ConversationID,
		MessageID:      messageID,
		SenderType:     params.SenderType,
		SenderID:       strings.TrimSpace(params.SenderID),
		SenderName:     senderName,
		Content:        content,
		CreatedAt:      nowStr,
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	status := conversation.Status
	if params.SenderType == model.SenderTypeUser && status == model.ConversationStatusActive {
		status = model.ConversationStatusWaiting
	}

	preview := utils.Truncate(content, previewLength)
	if err := s.repo.UpdateConversationOnMessage(ctx, conversation.ConversationID, status, preview, nowStr); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to update conversation", err)
	}

	conversation.Status = status
	conversation.LastMessagePreview = preview
	conversation.UpdatedAt = nowStr

	return MessageResult{
		Conversation: conversation,
		Message:      message,
	}, nil
}

// CloseConversation moves a conversation to its terminal state and appends
// the closure system message for broadcast. Closing an already closed
// conversation is a no-op reported as a conflict to the caller only.
func (s *Service) CloseConversation(ctx context.Context, conversationID, agentID string) (CloseResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return CloseResult{}, newError(ErrorCodeValidation, "conversation id is required", nil)
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	closed, err := s.repo.CloseConversation(ctx, conversationID, nowStr)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return CloseResult{}, newError(ErrorCodeNotFound, "conversation not found", err)
		case errors.Is(err, ErrConflict):
			return CloseResult{}, newError(ErrorCodeConflict, "conversation is already closed", err)
		default:
			return CloseResult{}, newError(ErrorCodeInternal, "failed to close conversation", err)
		}
	}

	messageID := uuid.NewString()
	systemMessage := model.MessageItem{
		PK:             model.MessagePK(conversationID, messageID),
		ConversationID: conversationID,
		MessageID:      messageID,
		SenderType:     model.SenderTypeSystem,
		SenderName:     "System",
		Content:        closureNotice,
		CreatedAt:      nowStr,
	}
	if err := s.repo.CreateMessage(ctx, systemMessage); err != nil {
		return CloseResult{}, newError(ErrorCodeInternal, "failed to store closure message", err)
	}

	preview := utils.Truncate(closureNotice, previewLength)
	if err := s.repo.UpdateConversationOnMessage(ctx, conversationID, model.ConversationStatusClosed, preview, nowStr); err != nil {
		return CloseResult{}, newError(ErrorCodeInternal, "failed to update conversation", err)
	}
	closed.LastMessagePreview = preview
	closed.UpdatedAt = nowStr

	return CloseResult{
		Conversation:  closed,
		SystemMessage: systemMessage,
	}, nil
}

// CheckActive reports whether a remembered conversation can still be
// resumed. Unknown ids count as closed so stale client references get
// discarded instead of erroring.
func (s *Service) CheckActive(ctx context.Context, conversationID string) (bool, error) {
	conversation, err := s.repo.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}
	return conversation.Status.Open(), nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	conversation, err := s.repo.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}
	return conversation, nil
}

func (s *Service) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	conversations, err := s.repo.ListConversations(ctx, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}
	return conversations, nil
}

func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return nil, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
