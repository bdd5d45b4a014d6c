package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"swing-service/internal/ingest"
	"swing-service/internal/monitoring"
)

const (
	wsReadLimit    = 8 << 20
	wsWriteTimeout = 10 * time.Second
)

// wsHandler serves one producer connection. Messages are handled in arrival
// order and every response is written back on the same connection.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[ws] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	s.track(conn, true)
	defer func() {
		s.track(conn, false)
		conn.Close()
	}()
	conn.SetReadLimit(wsReadLimit)
	monitoring.Logf("[ws] client connected: %s", r.RemoteAddr)

	ctx := context.Background()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Logf("[ws] read error from %s: %v", r.RemoteAddr, err)
			}
			break
		}

		msg, responses := s.pipeline.HandleMessage(ctx, "websocket", data)
		if msg != nil {
			s.claim(msg, conn)
		}

		if err := writeResponses(conn, responses); err != nil {
			monitoring.Logf("[ws] write to %s failed: %v", r.RemoteAddr, err)
			break
		}
	}

	monitoring.Logf("[ws] client disconnected: %s", r.RemoteAddr)
	owned := s.release(conn)
	if !s.opts.EndSessionsOnDisconnect {
		return
	}
	for _, id := range owned {
		monitoring.Logf("[ws] ending session %s after disconnect", id)
		s.pipeline.EndSession(ctx, id)
	}
}

func writeResponses(conn *websocket.Conn, responses []ingest.Response) error {
	for _, resp := range responses {
		data, err := resp.Encode()
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) track(conn *websocket.Conn, add bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// claim records conn as the owner of the message's session. The connection
// that fed a session last owns it; session_end drops the session.
func (s *Server) claim(msg ingest.Message, conn *websocket.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if msg.Type() == ingest.TypeSessionEnd {
		delete(s.owners, msg.Session())
		return
	}
	s.owners[msg.Session()] = conn
}

// release forgets every session owned by conn and returns their ids.
func (s *Server) release(conn *websocket.Conn) []string {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	var ids []string
	for id, owner := range s.owners {
		if owner == conn {
			ids = append(ids, id)
			delete(s.owners, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// closeWebsockets runs on shutdown; hijacked connections are not closed by
// http.Server.Shutdown.
func (s *Server) closeWebsockets() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	deadline := time.Now().Add(time.Second)
	for conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		conn.Close()
	}
}
