package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	internaljwt "support-chat-backend/internal/jwt"

	"github.com/gorilla/websocket"
)

// Client is one persistent connection. Anonymous visitors carry a zero
// Identity; authenticated connections carry the resolved user and role.
type Client struct {
	Conn      *websocket.Conn
	Message   chan *OutEvent
	ID        string
	Identity  internaljwt.Identity
	Anonymous bool
	done      chan struct{} // Signal for coordinating goroutine shutdown
	mu        sync.Mutex    // Mutex for connection access
	isClosed  bool          // Flag to track connection state
}

func (cl *Client) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteMessage(websocket.PingMessage, nil)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Ping error for client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

func (cl *Client) writeMessage() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteJSON(msg)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Error sending event to client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

func (cl *Client) readMessage(h *Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in readMessage: %v", r)
		}

		if cl.done != nil {
			close(cl.done)
		}

		h.disconnect(cl)
		log.Printf("Client %s disconnected", cl.ID)
	}()

	cl.Conn.SetReadLimit(512 * 1024)

	for {
		_, raw, err := cl.Conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					break
				}
			}
			log.Printf("Error reading from client %s: %v", cl.ID, err)
			break
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			h.sendError(cl, "malformed event")
			continue
		}

		h.dispatch(cl, envelope)
	}
}
