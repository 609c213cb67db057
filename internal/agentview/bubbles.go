// Package agentview holds the agent console's conversation state: the
// conversation list panel and the small set of open chat bubbles. Like the
// customer widget it is a headless model driven by server events.
package agentview

import (
	"sort"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	ws "support-chat-backend/internal/websocket"
)

// MaxBubbles bounds how many conversations an agent can have open at once.
// Opening another evicts the oldest bubble by insertion order.
const MaxBubbles = 3

// Command is an event the console wants sent over the connection.
type Command struct {
	Event string
	Data  any
}

type bubble struct {
	conversationID string
	messages       []dto.Message
	seen           map[string]struct{}
	remoteTyping   bool
	typistName     string
}

// Manager tracks the list panel and the open bubbles. The list panel is the
// authoritative browsing surface, fed by snapshots and incremental updates;
// bubbles are per-conversation views rebuilt from history on every open.
type Manager struct {
	order   []string
	bubbles map[string]*bubble
	list    map[string]dto.Conversation
}

func NewManager() *Manager {
	return &Manager{
		bubbles: make(map[string]*bubble),
		list:    make(map[string]dto.Conversation),
	}
}

// Connect joins the admin room and asks for the initial snapshot.
func (m *Manager) Connect() []Command {
	return []Command{{Event: ws.EventJoinAdminRoom}}
}

// Open raises a bubble for the conversation, joining the room so messages
// flow immediately. A 4th bubble evicts the oldest open one. Reopening an
// already-open conversation keeps its position and emits nothing.
func (m *Manager) Open(conversationID string) (commands []Command, evicted string) {
	if conversationID == "" {
		return nil, ""
	}
	if _, open := m.bubbles[conversationID]; open {
		return nil, ""
	}

	if len(m.order) >= MaxBubbles {
		evicted = m.order[0]
		m.order = m.order[1:]
		delete(m.bubbles, evicted)
	}

	m.order = append(m.order, conversationID)
	m.bubbles[conversationID] = &bubble{
		conversationID: conversationID,
		seen:           make(map[string]struct{}),
	}

	commands = []Command{{
		Event: ws.EventJoinConversation,
		Data:  ws.JoinConversationPayload{ConversationID: conversationID},
	}}
	return commands, evicted
}

// CloseBubble removes the bubble from the local view only. The conversation
// stays open on the server; ending support is a separate action.
func (m *Manager) CloseBubble(conversationID string) {
	if _, open := m.bubbles[conversationID]; !open {
		return
	}
	delete(m.bubbles, conversationID)
	for i, id := range m.order {
		if id == conversationID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// CloseConversation ends support for the conversation on the server.
func (m *Manager) CloseConversation(conversationID string) []Command {
	return []Command{{
		Event: ws.EventCloseConversation,
		Data:  ws.CloseConversationPayload{ConversationID: conversationID},
	}}
}

// OpenBubbles returns conversation ids in insertion order, oldest first.
func (m *Manager) OpenBubbles() []string {
	return append([]string(nil), m.order...)
}

func (m *Manager) IsOpen(conversationID string) bool {
	_, open := m.bubbles[conversationID]
	return open
}

// Messages returns the loaded history for an open bubble in delivery order.
func (m *Manager) Messages(conversationID string) []dto.Message {
	b, open := m.bubbles[conversationID]
	if !open {
		return nil
	}
	return append([]dto.Message(nil), b.messages...)
}

func (m *Manager) RemoteTyping(conversationID string) (bool, string) {
	b, open := m.bubbles[conversationID]
	if !open {
		return false, ""
	}
	return b.remoteTyping, b.typistName
}

// HandleHistory rebuilds an open bubble's view from the server history.
func (m *Manager) HandleHistory(payload ws.ConversationMessagesPayload) {
	b, open := m.bubbles[payload.ConversationID]
	if !open {
		return
	}
	b.messages = nil
	b.seen = make(map[string]struct{})
	for _, message := range payload.Messages {
		b.append(message)
	}
}

// HandleNewMessage routes a live message to its bubble, dropping ids already
// seen there. Messages for conversations without an open bubble only refresh
// the list panel via conversation-updated, so they are ignored here.
func (m *Manager) HandleNewMessage(message dto.Message) {
	b, open := m.bubbles[message.ConversationID]
	if !open {
		return
	}
	b.append(message)
}

func (b *bubble) append(message dto.Message) {
	if _, ok := b.seen[message.MessageID]; ok {
		return
	}
	b.seen[message.MessageID] = struct{}{}
	b.messages = append(b.messages, message)
}

// HandleTyping records the customer's last-known typing boolean for the
// bubble. No timeout clears it.
func (m *Manager) HandleTyping(payload ws.UserTypingPayload) {
	b, open := m.bubbles[payload.ConversationID]
	if !open {
		return
	}
	if payload.SenderType == model.SenderTypeAdmin {
		return
	}
	b.remoteTyping = payload.IsTyping
	b.typistName = payload.SenderName
}

// ApplySnapshot replaces the list panel with a full server snapshot.
func (m *Manager) ApplySnapshot(conversations []dto.Conversation) {
	m.list = make(map[string]dto.Conversation, len(conversations))
	for _, conversation := range conversations {
		m.list[conversation.ConversationID] = conversation
	}
}

// ApplyUpsert folds an incremental update (new conversation, preview change,
// status change) into the list panel.
func (m *Manager) ApplyUpsert(conversation dto.Conversation) {
	m.list[conversation.ConversationID] = conversation
}

// ApplyClosed marks the conversation closed in the list panel and clears the
// bubble's typing indicator. The bubble itself stays open so the agent can
// still read the transcript.
func (m *Manager) ApplyClosed(conversationID string) {
	if conversation, ok := m.list[conversationID]; ok {
		conversation.Status = string(model.ConversationStatusClosed)
		m.list[conversationID] = conversation
	}
	if b, open := m.bubbles[conversationID]; open {
		b.remoteTyping = false
		b.typistName = ""
	}
}

// Conversations returns the list panel, most recently updated first.
func (m *Manager) Conversations() []dto.Conversation {
	conversations := make([]dto.Conversation, 0, len(m.list))
	for _, conversation := range m.list {
		conversations = append(conversations, conversation)
	}
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].UpdatedAt != conversations[j].UpdatedAt {
			return conversations[i].UpdatedAt > conversations[j].UpdatedAt
		}
		return conversations[i].ConversationID < conversations[j].ConversationID
	})
	return conversations
}

// UnreadCount is the number of conversations still waiting for an agent.
func (m *Manager) UnreadCount() int {
	count := 0
	for _, conversation := range m.list {
		if conversation.Status == string(model.ConversationStatusWaiting) {
			count++
		}
	}
	return count
}
