// Package httpapi exposes secsync's server core over HTTP, upgrading
// per-document connections to websockets via a gorilla/mux route keyed by
// docId.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/secsync/secsync/messages"
	"github.com/secsync/secsync/server/conn"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Authenticator resolves a session key query parameter into an
// authorization decision for a document. secsync's transport layer treats
// authorization as host-defined; this hook is where a real deployment
// would validate the key against its own session store.
type Authenticator interface {
	Authorize(r *http.Request, docID, sessionKey string) bool
}

// AllowAll authorizes every connection. It exists so the demo binaries and
// tests do not need a real session backend.
type AllowAll struct{}

func (AllowAll) Authorize(*http.Request, string, string) bool { return true }

// wsClient owns one *websocket.Conn and serializes every write to it
// through a single writePump goroutine draining send. gorilla/websocket
// permits only one concurrent writer per connection; both the read loop's
// acks/failures and the broadcast relay hand frames to Send rather than
// writing to conn directly.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, 256)}
}

// Send enqueues frame for the writePump goroutine. If the client is too far
// behind to keep up, the buffer fills and the connection is dropped rather
// than blocking the caller (the read loop or the broadcast relay).
func (c *wsClient) Send(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		c.close()
		return errors.New("httpapi: send buffer full, dropping connection")
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump is the only goroutine that ever calls conn.WriteMessage.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// Server wires a conn.Manager onto an HTTP router.
type Server struct {
	manager *conn.Manager
	auth    Authenticator
	logger  *zap.SugaredLogger
}

// New creates a Server. auth may be nil, in which case every connection is
// authorized (suitable only for local development).
func New(manager *conn.Manager, auth Authenticator, logger *zap.SugaredLogger) *Server {
	if auth == nil {
		auth = AllowAll{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{manager: manager, auth: auth, logger: logger}
}

// Router builds the gorilla/mux router serving secsync's websocket endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/doc/{docId}", s.handleConnection)
	return r
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docId"]
	sessionKey := r.URL.Query().Get("sessionKey")
	if !s.auth.Authorize(r, docID, sessionKey) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("httpapi: upgrade failed", "error", err)
		return
	}
	client := newWSClient(ws)
	go client.writePump()

	connID := uuid.NewString()
	ctx := r.Context()

	if err := s.manager.HandleConnect(ctx, docID, client); err != nil {
		s.logger.Warnw("httpapi: initial catch-up failed", "docId", docID, "error", err)
		client.close()
		return
	}

	relay, cancel := s.manager.Subscribe(ctx, docID, connID)
	defer cancel()

	go func() {
		for frame := range relay {
			if err := client.Send(frame); err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			client.close()
			return
		}
		s.dispatch(ctx, docID, connID, raw, client)
	}
}

func (s *Server) dispatch(ctx context.Context, docID, connID string, raw []byte, sender conn.Sender) {
	typ, err := messages.SniffType(raw)
	if err != nil {
		s.logger.Warnw("httpapi: malformed frame", "docId", docID, "error", err)
		return
	}

	switch typ {
	case messages.TypeSnapshot:
		var snap messages.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			s.logger.Warnw("httpapi: malformed snapshot", "docId", docID, "error", err)
			return
		}
		if err := s.manager.HandleSnapshot(ctx, docID, connID, &snap, sender); err != nil {
			s.logger.Warnw("httpapi: handle snapshot failed", "docId", docID, "error", err)
		}
	case messages.TypeUpdate:
		var upd messages.Update
		if err := json.Unmarshal(raw, &upd); err != nil {
			s.logger.Warnw("httpapi: malformed update", "docId", docID, "error", err)
			return
		}
		if err := s.manager.HandleUpdate(ctx, docID, connID, &upd, sender); err != nil {
			s.logger.Warnw("httpapi: handle update failed", "docId", docID, "error", err)
		}
	case messages.TypeEphemeralMessage:
		var eph messages.EphemeralMessage
		if err := json.Unmarshal(raw, &eph); err != nil {
			s.logger.Warnw("httpapi: malformed ephemeral message", "docId", docID, "error", err)
			return
		}
		if err := s.manager.HandleEphemeral(ctx, docID, connID, &eph); err != nil {
			s.logger.Warnw("httpapi: handle ephemeral failed", "docId", docID, "error", err)
		}
	default:
		s.logger.Warnw("httpapi: unknown frame type", "docId", docID, "type", typ)
	}
}
