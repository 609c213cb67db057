package endpoints

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"support-chat-backend/internal/dto"
	conversationservice "support-chat-backend/internal/service/conversation"
)

const defaultConversationsLimit = 100

// ConversationEndpoints is the agent console's REST read surface. Everything
// that mutates a conversation goes over the websocket; these endpoints exist
// for dashboards and deep links into a transcript.
type ConversationEndpoints interface {
	Conversations(http.ResponseWriter, *http.Request) error
	ConversationMessages(http.ResponseWriter, *http.Request) error
}

type ConversationPaths struct {
	ConversationsPath  string
	ConversationPrefix string
}

type conversationEndpoints struct {
	service *conversationservice.Service
	paths   ConversationPaths
}

func NewConversationEndpoints(service *conversationservice.Service, prefix string) ConversationEndpoints {
	base := strings.TrimRight(prefix, "/")
	return &conversationEndpoints{
		service: service,
		paths: ConversationPaths{
			ConversationsPath:  base + "/conversations",
			ConversationPrefix: base + "/conversations/",
		},
	}
}

func (h *conversationEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListConversations,
	})
}

func (h *conversationEndpoints) ConversationMessages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListMessages,
	})
}

func (h *conversationEndpoints) handleListConversations(w http.ResponseWriter, r *http.Request) error {
	limit := defaultConversationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid limit parameter",
				ErrorLog:   fmt.Errorf("parse limit %q: %v", raw, err),
			}
		}
		limit = parsed
	}

	conversations, err := h.service.ListConversations(r.Context(), limit)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.ListConversationsResponse{
		Conversations: dto.FromConversationItems(conversations),
	})
}

func (h *conversationEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	conversationID, err := h.extractConversationID(r.URL.Path)
	if err != nil {
		return err
	}

	messages, err := h.service.ListMessages(r.Context(), conversationID, 0)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{
		Messages: dto.FromMessageItems(messages),
	})
}

// extractConversationID handles both /conversations/{id} and
// /conversations/{id}/messages.
func (h *conversationEndpoints) extractConversationID(path string) (string, error) {
	rest := strings.TrimPrefix(path, h.paths.ConversationPrefix)
	if rest == path {
		return "", &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Conversation not found",
			ErrorLog:   fmt.Errorf("path %q outside conversation prefix", path),
		}
	}
	rest = strings.TrimSuffix(strings.Trim(rest, "/"), "/messages")
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Conversation not found",
			ErrorLog:   fmt.Errorf("conversation id missing in path %q", path),
		}
	}
	return rest, nil
}

func (h *conversationEndpoints) serviceError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*conversationservice.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("conversation service: %w", err),
		}
	}

	var errorLog error
	if svcErr.Err != nil {
		errorLog = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		errorLog = svcErr
	}

	switch svcErr.Code {
	case conversationservice.ErrorCodeValidation:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	case conversationservice.ErrorCodeForbidden:
		return &HTTPError{
			StatusCode: http.StatusForbidden,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	case conversationservice.ErrorCodeNotFound:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	case conversationservice.ErrorCodeConflict:
		return &HTTPError{
			StatusCode: http.StatusConflict,
			Message:    svcErr.Message,
			ErrorLog:   errorLog,
		}
	default:
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   errorLog,
		}
	}
}
