package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AlverezYari/reviewgreen/internal/logging"
)

const (
	// a client that cannot take a frame within two preview ticks is dropped
	writeWait      = 2 * previewInterval
	maxMessageSize = 512
)

// previewClient is one websocket viewer. Frames are queued on send and
// written by the client's own pump, never under the connection map lock.
type previewClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newPreviewClient(conn *websocket.Conn) *previewClient {
	return &previewClient{conn: conn, send: make(chan []byte, 1)}
}

// close must only be called after the client left the connection map.
func (c *previewClient) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func (c *previewClient) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			logging.Debugf("server: dropping preview client: %v", err)
			return
		}
	}
}

func (s *Server) handleWebSocketPreview(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("server: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	logging.Infof("server: preview client connected from %s", r.RemoteAddr)

	client := newPreviewClient(conn)
	s.wsConnectionsMu.Lock()
	s.wsConnections[client] = true
	s.wsConnectionsMu.Unlock()

	go client.writePump()

	defer func() {
		s.removeClient(client)
		logging.Infof("server: preview client %s disconnected", r.RemoteAddr)
	}()

	conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// BroadcastFrame queues frameBytes for every client. A client still busy with
// the previous frame skips this one.
func (s *Server) BroadcastFrame(frameBytes []byte) {
	s.wsConnectionsMu.RLock()
	defer s.wsConnectionsMu.RUnlock()
	for client := range s.wsConnections {
		select {
		case client.send <- frameBytes:
		default:
		}
	}
}

// Clients is the number of connected preview clients.
func (s *Server) Clients() int {
	s.wsConnectionsMu.RLock()
	defer s.wsConnectionsMu.RUnlock()
	return len(s.wsConnections)
}

func (s *Server) removeClient(client *previewClient) {
	s.wsConnectionsMu.Lock()
	_, ok := s.wsConnections[client]
	delete(s.wsConnections, client)
	s.wsConnectionsMu.Unlock()
	if ok {
		client.close()
	}
}

func (s *Server) closeConnections() {
	s.wsConnectionsMu.Lock()
	clients := make([]*previewClient, 0, len(s.wsConnections))
	for client := range s.wsConnections {
		clients = append(clients, client)
		delete(s.wsConnections, client)
	}
	s.wsConnectionsMu.Unlock()

	for _, client := range clients {
		client.close()
	}
}
