package router

import (
	"net/http"

	"support-chat-backend/internal/api"
)

// WebsocketRoutes binds the connection gateway. The route skips the request
// queue: a websocket holds its connection for the lifetime of the client.
func WebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		mux.HandleFunc(prefix+"/ws", s.MakeStreamingHandleFunc(s.Handler().ServeWS))
	}
}
