package router

import (
	"net/http"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/endpoints"
	"support-chat-backend/internal/api/middleware"
	conversationservice "support-chat-backend/internal/service/conversation"
)

// AdminConversationRoutes exposes the agent console's REST reads. Writes
// stay on the websocket surface.
func AdminConversationRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := conversationservice.New(s.Database())
		convEndpoints := endpoints.NewConversationEndpoints(service, prefix)

		mux.HandleFunc(prefix+"/conversations", s.MakeHTTPHandleFunc(convEndpoints.Conversations, middleware.ValidateAgentJWT))
		mux.HandleFunc(prefix+"/conversations/", s.MakeHTTPHandleFunc(convEndpoints.ConversationMessages, middleware.ValidateAgentJWT))
	}
}
