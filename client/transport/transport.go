// Package transport implements the client-side websocket adapter that
// translates wire frames into client.Machine events and vice versa. Run
// reads frames on its own goroutine; Send writes each outgoing frame
// directly to the connection on the caller's goroutine.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/secsync/secsync/client"
)

const (
	openTimeout   = 5 * time.Second
	baseDelay     = 500 * time.Millisecond
)

// Actor owns one websocket connection for one document and feeds events
// into a client.Machine. It holds only a send-handle into the machine; the
// machine reaches the Actor only through the client.Sender interface.
type Actor struct {
	host       string
	sessionKey string
	docID      string
	logger     *zap.SugaredLogger
	machine    *client.Machine

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a transport actor for one document connection.
func New(websocketHost, sessionKey, docID string, machine *client.Machine, logger *zap.SugaredLogger) *Actor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Actor{host: websocketHost, sessionKey: sessionKey, docID: docID, machine: machine, logger: logger}
}

// Send implements client.Sender.
func (a *Actor) Send(ctx context.Context, frame []byte) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Run dials, reconnecting with a linear backoff
// (baseDelay * (1 + unsuccessfulReconnects)) until ctx is cancelled.
func (a *Actor) Run(ctx context.Context) {
	unsuccessfulReconnects := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.machine.Enqueue(client.Event{Type: client.EventWebsocketRetry})
		if err := a.connectOnce(ctx); err != nil {
			a.logger.Debugw("websocket connect failed", "error", err, "attempt", unsuccessfulReconnects)
			a.machine.Enqueue(client.Event{Type: client.EventWebsocketDisconnected})
			unsuccessfulReconnects++
			delay := time.Duration(int64(baseDelay) * int64(1+unsuccessfulReconnects))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		unsuccessfulReconnects = 0
	}
}

func (a *Actor) connectOnce(parent context.Context) error {
	u := url.URL{Scheme: "wss", Host: a.host, Path: "/v1/doc/" + a.docID}
	q := u.Query()
	q.Set("sessionKey", a.sessionKey)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(parent, openTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.machine.Enqueue(client.Event{Type: client.EventWebsocketConnected})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			a.conn = nil
			a.mu.Unlock()
			return err
		}
		a.machine.Enqueue(client.Event{Type: client.EventWebsocketAddToIncomingQueue, Data: msg})
	}
}

// Close closes the underlying connection, if any.
func (a *Actor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}
