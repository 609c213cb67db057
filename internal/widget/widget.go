// Package widget holds the customer-facing conversation state machine. It is
// the client half of the chat: a headless model the embeddable widget renders
// from, fed by server events and emitting the commands to send back.
package widget

import (
	"errors"
	"strings"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	ws "support-chat-backend/internal/websocket"
)

// ErrNameRequired gates the start form for anonymous viewers. The server
// itself accepts a nameless start and labels the guest with a default.
var ErrNameRequired = errors.New("widget: display name required")

type Phase string

const (
	PhaseWelcome  Phase = "welcome"
	PhaseChatting Phase = "chatting"
)

// Storage remembers the conversation id between page loads so a returning
// visitor can resume. The zero implementation is in-memory; the embedding
// application can back it with browser local storage.
type Storage interface {
	LoadConversationID() string
	SaveConversationID(id string)
	Clear()
}

type MemoryStorage struct {
	conversationID string
}

func (s *MemoryStorage) LoadConversationID() string   { return s.conversationID }
func (s *MemoryStorage) SaveConversationID(id string) { s.conversationID = id }
func (s *MemoryStorage) Clear()                       { s.conversationID = "" }

// Command is an event the widget wants sent over the connection.
type Command struct {
	Event string
	Data  any
}

type State struct {
	store Storage

	phase          Phase
	conversationID string
	status         string
	guestName      string
	authenticated  bool

	messages []dto.Message
	seen     map[string]struct{}

	input        string
	typing       bool
	remoteTyping bool
}

func NewState(store Storage, authenticated bool) *State {
	if store == nil {
		store = &MemoryStorage{}
	}
	return &State{
		store:         store,
		phase:         PhaseWelcome,
		authenticated: authenticated,
		seen:          make(map[string]struct{}),
	}
}

func (s *State) Phase() Phase           { return s.phase }
func (s *State) ConversationID() string { return s.conversationID }
func (s *State) Status() string         { return s.status }
func (s *State) RemoteTyping() bool     { return s.remoteTyping }

// Messages returns the loaded history in delivery order.
func (s *State) Messages() []dto.Message {
	return append([]dto.Message(nil), s.messages...)
}

// Restore asks the server whether a remembered conversation is still open.
// With nothing remembered it returns no command and the widget stays on the
// welcome screen.
func (s *State) Restore() []Command {
	remembered := s.store.LoadConversationID()
	if remembered == "" {
		return nil
	}
	return []Command{{
		Event: ws.EventCheckActive,
		Data:  ws.CheckActivePayload{ConversationID: remembered},
	}}
}

// HandleActiveConversation resolves the restore probe. An open conversation
// is re-entered silently with a fresh history fetch; a closed or unknown one
// is forgotten.
func (s *State) HandleActiveConversation(payload ws.ActiveConversationPayload) []Command {
	if !payload.IsActive {
		s.store.Clear()
		s.reset()
		return nil
	}
	return []Command{
		{
			Event: ws.EventStartSupport,
			Data:  ws.StartSupportPayload{ConversationID: payload.ConversationID},
		},
		{
			Event: ws.EventJoinConversation,
			Data:  ws.JoinConversationPayload{ConversationID: payload.ConversationID},
		},
	}
}

// StartSupport begins a conversation from the welcome form. Anonymous viewers
// must provide a display name first.
func (s *State) StartSupport(guestName, guestEmail string) ([]Command, error) {
	guestName = strings.TrimSpace(guestName)
	if !s.authenticated && guestName == "" {
		return nil, ErrNameRequired
	}
	s.guestName = guestName
	return []Command{{
		Event: ws.EventStartSupport,
		Data: ws.StartSupportPayload{
			GuestName:  guestName,
			GuestEmail: strings.TrimSpace(guestEmail),
		},
	}}, nil
}

func (s *State) HandleSupportStarted(payload ws.SupportStartedPayload) {
	s.conversationID = payload.ConversationID
	s.status = payload.Status
	s.phase = PhaseChatting
	s.store.SaveConversationID(payload.ConversationID)
}

// HandleHistory replaces the loaded view with the server's history. The view
// is derived state; each (re)join rebuilds it from scratch.
func (s *State) HandleHistory(payload ws.ConversationMessagesPayload) {
	if s.conversationID != "" && payload.ConversationID != s.conversationID {
		return
	}
	s.messages = nil
	s.seen = make(map[string]struct{})
	for _, message := range payload.Messages {
		s.appendMessage(message)
	}
}

// HandleNewMessage appends a live message, silently discarding ids already
// seen so a reconnect replay never duplicates entries.
func (s *State) HandleNewMessage(message dto.Message) {
	if message.ConversationID != s.conversationID {
		return
	}
	s.appendMessage(message)
}

func (s *State) appendMessage(message dto.Message) {
	if _, ok := s.seen[message.MessageID]; ok {
		return
	}
	s.seen[message.MessageID] = struct{}{}
	s.messages = append(s.messages, message)
}

// SetInput tracks the compose box. Typing is debounced by input state: a
// non-empty box means typing, an emptied box clears it. Only transitions emit
// a command.
func (s *State) SetInput(text string) []Command {
	s.input = text
	nowTyping := strings.TrimSpace(text) != ""
	if nowTyping == s.typing || s.conversationID == "" {
		s.typing = nowTyping && s.conversationID != ""
		return nil
	}
	s.typing = nowTyping
	return []Command{{
		Event: ws.EventTyping,
		Data: ws.TypingPayload{
			ConversationID: s.conversationID,
			IsTyping:       nowTyping,
		},
	}}
}

// Send submits the compose box. Sending clears the input, which also clears
// the typing flag.
func (s *State) Send() []Command {
	content := strings.TrimSpace(s.input)
	if content == "" || s.conversationID == "" {
		return nil
	}

	commands := []Command{{
		Event: ws.EventSendMessage,
		Data: ws.SendMessagePayload{
			ConversationID: s.conversationID,
			Content:        content,
		},
	}}
	s.input = ""
	if s.typing {
		s.typing = false
		commands = append(commands, Command{
			Event: ws.EventTyping,
			Data: ws.TypingPayload{
				ConversationID: s.conversationID,
				IsTyping:       false,
			},
		})
	}
	return commands
}

// HandleTyping records the agent's last-known typing boolean. There is no
// timeout-based auto-clear: the indicator changes only on a later explicit
// update or when the conversation closes.
func (s *State) HandleTyping(payload ws.UserTypingPayload) {
	if payload.ConversationID != s.conversationID {
		return
	}
	if payload.SenderType == model.SenderTypeAdmin {
		s.remoteTyping = payload.IsTyping
	}
}

func (s *State) HandleConversationUpdated(conversation dto.Conversation) {
	if conversation.ConversationID != s.conversationID {
		return
	}
	s.status = conversation.Status
}

// HandleConversationClosed forgets the remembered id so the next page load
// starts from the welcome screen. The transcript stays visible until Reset.
func (s *State) HandleConversationClosed(payload ws.ConversationClosedPayload) {
	if payload.ConversationID != s.conversationID {
		return
	}
	s.status = string(model.ConversationStatusClosed)
	s.remoteTyping = false
	s.store.Clear()
}

// Reset returns to the welcome screen, dropping the transcript.
func (s *State) Reset() {
	s.store.Clear()
	s.reset()
}

func (s *State) reset() {
	s.phase = PhaseWelcome
	s.conversationID = ""
	s.status = ""
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.input = ""
	s.typing = false
	s.remoteTyping = false
}
