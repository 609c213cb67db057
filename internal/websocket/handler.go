package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"support-chat-backend/internal/dto"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/notify"
	"support-chat-backend/internal/presence"
	conversationservice "support-chat-backend/internal/service/conversation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const conversationsSnapshotLimit = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler is the connection gateway and event dispatcher: it authenticates
// new sockets, keeps presence current and routes every inbound event to the
// conversation registry before fanning results out through the hub.
type Handler struct {
	hub           *Hub
	presence      *presence.Tracker
	conversations *conversationservice.Service
	verify        func(token string) (internaljwt.Identity, error)
}

func NewHandler(hub *Hub, tracker *presence.Tracker, conversations *conversationservice.Service) *Handler {
	return &Handler{
		hub:           hub,
		presence:      tracker,
		conversations: conversations,
		verify:        internaljwt.IdentityFromToken,
	}
}

// ServeWS upgrades the request and binds the connection to an identity. A
// missing or bad credential never blocks the widget: the connection simply
// proceeds as anonymous.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, anonymous := h.resolveIdentity(r.URL.Query().Get("token"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with a handshake error.
		log.Printf("ws connect: upgrade failed: %v", err)
		return
	}

	cl := &Client{
		Conn:      conn,
		Message:   make(chan *OutEvent, 16),
		ID:        uuid.NewString(),
		Identity:  identity,
		Anonymous: anonymous,
		done:      make(chan struct{}),
	}

	h.hub.Register(cl)

	if !cl.Anonymous {
		h.presence.Add(cl.Identity.UserID)
		h.broadcastOnlineUsers()
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h)
}

func (h *Handler) resolveIdentity(token string) (internaljwt.Identity, bool) {
	if token == "" {
		return internaljwt.Identity{}, true
	}
	identity, err := h.verify(token)
	if err != nil {
		log.Printf("ws connect: credential rejected, continuing anonymous: %v", err)
		return internaljwt.Identity{}, true
	}
	return identity, false
}

func (h *Handler) disconnect(cl *Client) {
	h.hub.Unregister(cl)
	if !cl.Anonymous {
		h.presence.Remove(cl.Identity.UserID)
		h.broadcastOnlineUsers()
	}
}

// broadcastOnlineUsers pushes the full online list to the admin room. Always
// the whole list; the tracker keeps no deltas.
func (h *Handler) broadcastOnlineUsers() {
	h.hub.Broadcast(AdminRoom, OutEvent{
		Event: EventOnlineUsers,
		Data:  h.presence.List(),
	})
}

func (h *Handler) dispatch(cl *Client, envelope Envelope) {
	switch envelope.Event {
	case EventStartSupport:
		var payload StartSupportPayload
		if !h.decode(cl, envelope.Data, &payload) {
			return
		}
		h.handleStartSupport(cl, payload)
	case EventJoinConversation:
		var payload JoinConversationPayload
		if !h.decode(cl, envelope.Data, &payload) {
			return
		}
		h.handleJoinConversation(cl, payload)
	case EventSendMessage:
		var payload SendMessagePayload
		if !h.decode(cl, envelope.Data, &payload) {
			return
		}
		h.handleSendMessage(cl, payload)
	case EventTyping:
		var payload TypingPayload
		if !h.decode(cl, envelope.Data, &payload) {
			return
		}
		h.handleTyping(cl, payload)
	case EventCloseConversation:
		var payload CloseConversationPayload
		if !h.decode(cl, envelope.Data, &payload) {
			return
		}
		h.handleCloseConversation(cl, payload)
	case EventCheckActive:
		var payload CheckActivePayload
		if !h.decode(cl, envelope.Data, &payload) {
			return
		}
		h.handleCheckActive(cl, payload)
	case EventJoinAdminRoom:
		h.handleJoinAdminRoom(cl)
	case EventGetConversations:
		h.handleGetConversations(cl)
	default:
		h.sendError(cl, "unknown event")
	}
}

func (h *Handler) handleStartSupport(cl *Client, payload StartSupportPayload) {
	params := conversationservice.StartSupportParams{
		GuestName:            payload.GuestName,
		GuestEmail:           payload.GuestEmail,
		ResumeConversationID: payload.ConversationID,
	}
	if !cl.Anonymous && !cl.Identity.IsAgent() {
		params.UserID = cl.Identity.UserID
		params.UserName = cl.Identity.Name
	}

	result, err := h.conversations.StartSupport(context.Background(), params)
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}

	conversation := result.Conversation
	h.hub.Join(conversation.ConversationID, cl)

	h.hub.Send(cl, OutEvent{
		Event: EventSupportStarted,
		Data: SupportStartedPayload{
			ConversationID: conversation.ConversationID,
			Status:         string(conversation.Status),
		},
	})

	if !result.Resumed {
		h.hub.Broadcast(AdminRoom, OutEvent{
			Event: EventNewConversation,
			Data:  dto.FromConversationItem(conversation),
		})
	}
}

func (h *Handler) handleJoinConversation(cl *Client, payload JoinConversationPayload) {
	ctx := context.Background()

	var conversation model.ConversationItem
	var err error

	if cl.Identity.IsAgent() {
		wasWaiting := false
		if current, getErr := h.conversations.GetConversation(ctx, payload.ConversationID); getErr == nil {
			wasWaiting = current.Status == model.ConversationStatusWaiting
		}

		conversation, err = h.conversations.JoinConversation(ctx, payload.ConversationID, cl.Identity.UserID)
		if err != nil {
			h.sendServiceError(cl, err)
			return
		}

		if wasWaiting && conversation.Status == model.ConversationStatusActive {
			h.hub.Broadcast(AdminRoom, OutEvent{
				Event: EventConversationUpdated,
				Data:  dto.FromConversationItem(conversation),
			})
		}
	} else {
		conversation, err = h.conversations.GetConversation(ctx, payload.ConversationID)
		if err != nil {
			h.sendServiceError(cl, err)
			return
		}
		if conversation.ParticipantUserID != "" && conversation.ParticipantUserID != cl.Identity.UserID {
			h.sendError(cl, "not a participant of this conversation")
			return
		}
	}

	h.hub.Join(conversation.ConversationID, cl)

	messages, err := h.conversations.ListMessages(ctx, conversation.ConversationID, 0)
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}

	h.hub.Send(cl, OutEvent{
		Event: EventConversationMessages,
		Data: ConversationMessagesPayload{
			ConversationID: conversation.ConversationID,
			Messages:       dto.FromMessageItems(messages),
		},
	})
}

func (h *Handler) handleSendMessage(cl *Client, payload SendMessagePayload) {
	if !h.hub.IsMember(payload.ConversationID, cl.ID) {
		h.sendError(cl, "join the conversation before sending messages")
		return
	}

	senderType := model.SenderTypeUser
	if cl.Identity.IsAgent() {
		senderType = model.SenderTypeAdmin
	}

	result, err := h.conversations.AppendMessage(context.Background(), conversationservice.AppendMessageParams{
		ConversationID: payload.ConversationID,
		SenderType:     senderType,
		SenderID:       cl.Identity.UserID,
		SenderName:     cl.Identity.Name,
		Content:        payload.Content,
	})
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}

	h.fanOutMessage(result.Conversation, result.Message)
}

// fanOutMessage delivers a stored message to the conversation room and the
// admin room (once per connection), then pushes the updated conversation row
// so list previews and status stay current without the conversation open.
func (h *Handler) fanOutMessage(conversation model.ConversationItem, message model.MessageItem) {
	h.hub.BroadcastRooms([]string{conversation.ConversationID, AdminRoom}, OutEvent{
		Event: EventNewMessage,
		Data:  dto.FromMessageItem(message),
	})
	h.hub.Broadcast(AdminRoom, OutEvent{
		Event: EventConversationUpdated,
		Data:  dto.FromConversationItem(conversation),
	})
}

func (h *Handler) handleTyping(cl *Client, payload TypingPayload) {
	if !h.hub.IsMember(payload.ConversationID, cl.ID) {
		h.sendError(cl, "join the conversation before typing updates")
		return
	}

	// Room membership outlives the close broadcast, so the status has to be
	// checked here or typing would keep relaying on a closed conversation.
	conversation, err := h.conversations.GetConversation(context.Background(), payload.ConversationID)
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}
	if conversation.Status == model.ConversationStatusClosed {
		h.sendError(cl, "conversation is closed")
		return
	}

	senderType := model.SenderTypeUser
	senderName := cl.Identity.Name
	if cl.Identity.IsAgent() {
		senderType = model.SenderTypeAdmin
	} else if senderName == "" {
		senderName = conversation.ParticipantName()
	}

	h.hub.BroadcastExcept(payload.ConversationID, cl.ID, OutEvent{
		Event: EventUserTyping,
		Data: UserTypingPayload{
			ConversationID: payload.ConversationID,
			SenderType:     senderType,
			SenderName:     senderName,
			IsTyping:       payload.IsTyping,
		},
	})
}

func (h *Handler) handleCloseConversation(cl *Client, payload CloseConversationPayload) {
	if !cl.Identity.IsAgent() {
		h.sendError(cl, "unauthorized")
		return
	}

	result, err := h.conversations.CloseConversation(context.Background(), payload.ConversationID, cl.Identity.UserID)
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}

	rooms := []string{result.Conversation.ConversationID, AdminRoom}
	h.hub.BroadcastRooms(rooms, OutEvent{
		Event: EventNewMessage,
		Data:  dto.FromMessageItem(result.SystemMessage),
	})
	h.hub.BroadcastRooms(rooms, OutEvent{
		Event: EventConversationClosed,
		Data: ConversationClosedPayload{
			ConversationID: result.Conversation.ConversationID,
		},
	})
	h.hub.Broadcast(AdminRoom, OutEvent{
		Event: EventConversationUpdated,
		Data:  dto.FromConversationItem(result.Conversation),
	})
}

func (h *Handler) handleCheckActive(cl *Client, payload CheckActivePayload) {
	open, err := h.conversations.CheckActive(context.Background(), payload.ConversationID)
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}
	h.hub.Send(cl, OutEvent{
		Event: EventActiveConversation,
		Data: ActiveConversationPayload{
			ConversationID: payload.ConversationID,
			IsActive:       open,
		},
	})
}

func (h *Handler) handleJoinAdminRoom(cl *Client) {
	if !cl.Identity.IsAgent() {
		h.sendError(cl, "unauthorized")
		return
	}

	h.hub.Join(AdminRoom, cl)
	h.hub.Send(cl, OutEvent{Event: EventAdminRoomJoined})

	h.sendConversationsSnapshot(cl)
	h.hub.Send(cl, OutEvent{
		Event: EventOnlineUsers,
		Data:  h.presence.List(),
	})
}

func (h *Handler) handleGetConversations(cl *Client) {
	if !cl.Identity.IsAgent() {
		h.sendError(cl, "unauthorized")
		return
	}
	h.sendConversationsSnapshot(cl)
}

func (h *Handler) sendConversationsSnapshot(cl *Client) {
	conversations, err := h.conversations.ListConversations(context.Background(), conversationsSnapshotLimit)
	if err != nil {
		h.sendServiceError(cl, err)
		return
	}
	h.hub.Send(cl, OutEvent{
		Event: EventConversationsList,
		Data: ConversationsListPayload{
			Conversations: dto.FromConversationItems(conversations),
		},
	})
}

// Notify pushes an operational event to every agent console.
func (h *Handler) Notify(n notify.Notification) {
	h.hub.Broadcast(AdminRoom, OutEvent{
		Event: EventNewNotification,
		Data:  n,
	})
}

// decode fills out from the envelope payload. An absent payload decodes to
// the zero value; downstream validation decides whether that is acceptable.
func (h *Handler) decode(cl *Client, data json.RawMessage, out any) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		h.sendError(cl, "malformed event payload")
		return false
	}
	return true
}

// sendError reports a failure to the originating connection only. Nothing
// here is fatal to the socket.
func (h *Handler) sendError(cl *Client, message string) {
	h.hub.Send(cl, OutEvent{
		Event: EventError,
		Data:  ErrorPayload{Message: message},
	})
}

func (h *Handler) sendServiceError(cl *Client, err error) {
	var svcErr *conversationservice.Error
	if ok := asConversationError(err, &svcErr); ok {
		h.sendError(cl, svcErr.Message)
		return
	}
	log.Printf("ws dispatch: %v", err)
	h.sendError(cl, "internal error")
}

func asConversationError(err error, target **conversationservice.Error) bool {
	e, ok := err.(*conversationservice.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
