package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"support-chat-backend/internal/model"
)

type memoryRepository struct {
	mu            sync.Mutex
	conversations map[string]model.ConversationItem
	messages      map[string][]model.MessageItem
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		conversations: make(map[string]model.ConversationItem),
		messages:      make(map[string][]model.MessageItem),
	}
}

func (m *memoryRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conversation.ConversationID] = conversation
	return nil
}

func (m *memoryRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return conversation, nil
}

func (m *memoryRepository) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversations := make([]model.ConversationItem, 0, len(m.conversations))
	for _, conversation := range m.conversations {
		conversations = append(conversations, conversation)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt > conversations[j].UpdatedAt
	})
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

func (m *memoryRepository) AssignAgent(ctx context.Context, conversationID, agentID, updatedAt string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	if conversation.Status != model.ConversationStatusWaiting {
		return model.ConversationItem{}, ErrConflict
	}
	conversation.Status = model.ConversationStatusActive
	conversation.AssignedAgentID = agentID
	conversation.UpdatedAt = updatedAt
	m.conversations[conversationID] = conversation
	return conversation, nil
}

func (m *memoryRepository) UpdateConversationOnMessage(ctx context.Context, conversationID string, status model.ConversationStatus, preview, updatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conversation.Status = status
	conversation.LastMessagePreview = preview
	conversation.UpdatedAt = updatedAt
	m.conversations[conversationID] = conversation
	return nil
}

func (m *memoryRepository) CloseConversation(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	if conversation.Status == model.ConversationStatusClosed {
		return model.ConversationItem{}, ErrConflict
	}
	conversation.Status = model.ConversationStatusClosed
	conversation.UpdatedAt = updatedAt
	m.conversations[conversationID] = conversation
	return conversation, nil
}

func (m *memoryRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.ConversationID] = append(m.messages[message.ConversationID], message)
	return nil
}

func (m *memoryRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := append([]model.MessageItem(nil), m.messages[conversationID]...)
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// tickingClock hands out strictly increasing timestamps so ordering
// assertions do not depend on wall-clock resolution.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(repo Repository) *Service {
	return NewWithRepository(repo, newTickingClock().Now)
}

func TestStartSupportCreatesWaitingConversation(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)

	result, err := service.StartSupport(context.Background(), StartSupportParams{})
	if err != nil {
		t.Fatalf("StartSupport: %v", err)
	}
	if result.Resumed {
		t.Fatalf("fresh start must not report a resume")
	}
	if result.Conversation.Status != model.ConversationStatusWaiting {
		t.Fatalf("status = %s, want waiting", result.Conversation.Status)
	}
	if result.Conversation.ConversationID == "" {
		t.Fatalf("conversation id must be generated")
	}
	if got := result.Conversation.ParticipantName(); got != "Guest" {
		t.Fatalf("nameless guest label = %q, want Guest", got)
	}
}

func TestStartSupportResumesOpenConversation(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	first, err := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	if err != nil {
		t.Fatalf("StartSupport: %v", err)
	}

	second, err := service.StartSupport(ctx, StartSupportParams{
		ResumeConversationID: first.Conversation.ConversationID,
	})
	if err != nil {
		t.Fatalf("resume StartSupport: %v", err)
	}
	if !second.Resumed {
		t.Fatalf("expected resume of open conversation")
	}
	if second.Conversation.ConversationID != first.Conversation.ConversationID {
		t.Fatalf("resume created a duplicate conversation")
	}
}

func TestStartSupportIgnoresClosedConversation(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	first, err := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	if err != nil {
		t.Fatalf("StartSupport: %v", err)
	}
	if _, err := service.CloseConversation(ctx, first.Conversation.ConversationID, "agent-1"); err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}

	second, err := service.StartSupport(ctx, StartSupportParams{
		GuestName:            "Ola",
		ResumeConversationID: first.Conversation.ConversationID,
	})
	if err != nil {
		t.Fatalf("StartSupport after close: %v", err)
	}
	if second.Resumed {
		t.Fatalf("closed conversation must not be resumed")
	}
	if second.Conversation.ConversationID == first.Conversation.ConversationID {
		t.Fatalf("start after close must create a fresh conversation")
	}
}

func TestJoinConversationAssignsAgent(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})

	joined, err := service.JoinConversation(ctx, started.Conversation.ConversationID, "agent-1")
	if err != nil {
		t.Fatalf("JoinConversation: %v", err)
	}
	if joined.Status != model.ConversationStatusActive {
		t.Fatalf("status = %s, want active", joined.Status)
	}
	if joined.AssignedAgentID != "agent-1" {
		t.Fatalf("assignedAgentId = %q, want agent-1", joined.AssignedAgentID)
	}
}

func TestJoinConversationRaceHasSingleWinner(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID

	agents := []string{"agent-1", "agent-2"}
	results := make([]model.ConversationItem, len(agents))
	errs := make([]error, len(agents))

	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent string) {
			defer wg.Done()
			results[i], errs[i] = service.JoinConversation(ctx, conversationID, agent)
		}(i, agent)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("agent %s join failed: %v", agents[i], err)
		}
	}

	final, _ := repo.GetConversation(ctx, conversationID)
	if final.Status != model.ConversationStatusActive {
		t.Fatalf("final status = %s, want active", final.Status)
	}
	if final.AssignedAgentID != "agent-1" && final.AssignedAgentID != "agent-2" {
		t.Fatalf("assignedAgentId = %q, want one of the racers", final.AssignedAgentID)
	}
	for i, result := range results {
		if result.AssignedAgentID != final.AssignedAgentID {
			t.Fatalf("agent %s observed assignee %q, want %q", agents[i], result.AssignedAgentID, final.AssignedAgentID)
		}
		if result.Status != model.ConversationStatusActive {
			t.Fatalf("agent %s observed status %s, want active", agents[i], result.Status)
		}
	}
}

func TestAppendMessageRegressesActiveToWaiting(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID
	if _, err := service.JoinConversation(ctx, conversationID, "agent-1"); err != nil {
		t.Fatalf("JoinConversation: %v", err)
	}

	result, err := service.AppendMessage(ctx, AppendMessageParams{
		ConversationID: conversationID,
		SenderType:     model.SenderTypeUser,
		Content:        "are you still there?",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if result.Conversation.Status != model.ConversationStatusWaiting {
		t.Fatalf("participant message must regress active conversation to waiting, got %s", result.Conversation.Status)
	}
	if result.Conversation.AssignedAgentID != "agent-1" {
		t.Fatalf("regression must not clear the assignee")
	}
	if result.Message.SenderName != "Ola" {
		t.Fatalf("sender name = %q, want conversation participant name", result.Message.SenderName)
	}
}

func TestJoinConversationAfterRegression(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID
	if _, err := service.JoinConversation(ctx, conversationID, "agent-1"); err != nil {
		t.Fatalf("JoinConversation: %v", err)
	}
	if _, err := service.AppendMessage(ctx, AppendMessageParams{
		ConversationID: conversationID,
		SenderType:     model.SenderTypeUser,
		Content:        "are you still there?",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	rejoined, err := service.JoinConversation(ctx, conversationID, "agent-1")
	if err != nil {
		t.Fatalf("rejoin after regression: %v", err)
	}
	if rejoined.Status != model.ConversationStatusActive {
		t.Fatalf("rejoin of regressed conversation left status=%s, want active", rejoined.Status)
	}
	if rejoined.AssignedAgentID != "agent-1" {
		t.Fatalf("assignedAgentId = %q, want agent-1", rejoined.AssignedAgentID)
	}

	// A second regression opens the conversation to a takeover by another
	// agent, for example after the first one disconnects mid-shift.
	if _, err := service.AppendMessage(ctx, AppendMessageParams{
		ConversationID: conversationID,
		SenderType:     model.SenderTypeUser,
		Content:        "hello?",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	taken, err := service.JoinConversation(ctx, conversationID, "agent-2")
	if err != nil {
		t.Fatalf("takeover join: %v", err)
	}
	if taken.Status != model.ConversationStatusActive {
		t.Fatalf("takeover left status=%s, want active", taken.Status)
	}
	if taken.AssignedAgentID != "agent-2" {
		t.Fatalf("assignedAgentId = %q, want agent-2", taken.AssignedAgentID)
	}
}

func TestAppendMessageAdminKeepsStatus(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID
	service.JoinConversation(ctx, conversationID, "agent-1")

	result, err := service.AppendMessage(ctx, AppendMessageParams{
		ConversationID: conversationID,
		SenderType:     model.SenderTypeAdmin,
		SenderID:       "agent-1",
		SenderName:     "Kasia",
		Content:        "happy to help",
	})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if result.Conversation.Status != model.ConversationStatusActive {
		t.Fatalf("agent reply must keep the conversation active, got %s", result.Conversation.Status)
	}
	if result.Conversation.LastMessagePreview != "happy to help" {
		t.Fatalf("preview = %q", result.Conversation.LastMessagePreview)
	}
}

func TestAppendMessageRejectsEmptyContent(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})

	_, err := service.AppendMessage(ctx, AppendMessageParams{
		ConversationID: started.Conversation.ConversationID,
		SenderType:     model.SenderTypeUser,
		Content:        "   ",
	})
	var svcErr *Error
	if err == nil || !asServiceError(err, &svcErr) || svcErr.Code != ErrorCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAppendMessageToClosedConversation(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID
	if _, err := service.CloseConversation(ctx, conversationID, "agent-1"); err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}

	for _, senderType := range []string{model.SenderTypeUser, model.SenderTypeAdmin} {
		_, err := service.AppendMessage(ctx, AppendMessageParams{
			ConversationID: conversationID,
			SenderType:     senderType,
			Content:        "anyone?",
		})
		var svcErr *Error
		if err == nil || !asServiceError(err, &svcErr) || svcErr.Code != ErrorCodeConflict {
			t.Fatalf("send as %s after close: expected conflict, got %v", senderType, err)
		}
	}
}

func TestCloseConversationIsTerminal(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID

	closed, err := service.CloseConversation(ctx, conversationID, "agent-1")
	if err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}
	if closed.Conversation.Status != model.ConversationStatusClosed {
		t.Fatalf("status = %s, want closed", closed.Conversation.Status)
	}
	if closed.SystemMessage.SenderType != model.SenderTypeSystem {
		t.Fatalf("closure message sender = %s, want system", closed.SystemMessage.SenderType)
	}
	if !strings.Contains(closed.SystemMessage.Content, "closed") {
		t.Fatalf("closure message content = %q", closed.SystemMessage.Content)
	}

	_, err = service.CloseConversation(ctx, conversationID, "agent-2")
	var svcErr *Error
	if err == nil || !asServiceError(err, &svcErr) || svcErr.Code != ErrorCodeConflict {
		t.Fatalf("second close: expected conflict, got %v", err)
	}

	// The join CAS must not pull a conversation back out of closed.
	state, err := service.JoinConversation(ctx, conversationID, "agent-2")
	if err != nil {
		t.Fatalf("JoinConversation on closed: %v", err)
	}
	if state.Status != model.ConversationStatusClosed {
		t.Fatalf("join on closed conversation changed status to %s", state.Status)
	}
}

func TestJoinUnknownConversation(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)

	_, err := service.JoinConversation(context.Background(), "missing", "agent-1")
	var svcErr *Error
	if err == nil || !asServiceError(err, &svcErr) || svcErr.Code != ErrorCodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckActive(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID

	open, err := service.CheckActive(ctx, conversationID)
	if err != nil || !open {
		t.Fatalf("CheckActive(open) = %v, %v; want true, nil", open, err)
	}

	service.CloseConversation(ctx, conversationID, "agent-1")
	open, err = service.CheckActive(ctx, conversationID)
	if err != nil || open {
		t.Fatalf("CheckActive(closed) = %v, %v; want false, nil", open, err)
	}

	open, err = service.CheckActive(ctx, "never-existed")
	if err != nil || open {
		t.Fatalf("CheckActive(unknown) = %v, %v; want false, nil", open, err)
	}
}

func TestListMessagesPreservesAcceptanceOrder(t *testing.T) {
	repo := newMemoryRepository()
	service := newTestService(repo)
	ctx := context.Background()

	started, _ := service.StartSupport(ctx, StartSupportParams{GuestName: "Ola"})
	conversationID := started.Conversation.ConversationID

	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		if _, err := service.AppendMessage(ctx, AppendMessageParams{
			ConversationID: conversationID,
			SenderType:     model.SenderTypeUser,
			Content:        content,
		}); err != nil {
			t.Fatalf("AppendMessage(%q): %v", content, err)
		}
	}

	messages, err := service.ListMessages(ctx, conversationID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != len(contents) {
		t.Fatalf("len(messages) = %d, want %d", len(messages), len(contents))
	}
	for i, content := range contents {
		if messages[i].Content != content {
			t.Fatalf("messages[%d] = %q, want %q", i, messages[i].Content, content)
		}
	}
}

func asServiceError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
