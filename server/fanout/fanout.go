// Package fanout broadcasts document frames to every connection subscribed
// to a document, across replicas, over one Redis pub/sub channel per
// document id.
package fanout

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func channelName(docID string) string {
	return "secsync:doc:" + docID
}

// envelope wraps a broadcast frame with the id of the connection that
// produced it, so a replica can skip echoing a frame back to its own
// publisher when it also holds the same connection locally.
type envelope struct {
	OriginConnID string          `json:"originConnId"`
	Frame        json.RawMessage `json:"frame"`
}

// Hub fans document frames out to local subscribers and, via Redis
// pub/sub, to subscribers held by other replicas.
type Hub struct {
	rdb    *redis.Client
	logger *zap.SugaredLogger

	mu   chan struct{} // binary semaphore guarding subs
	subs map[string]map[string]chan []byte
}

// NewHub creates a Hub backed by an already-connected Redis client.
func NewHub(rdb *redis.Client, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Hub{rdb: rdb, logger: logger, mu: make(chan struct{}, 1), subs: make(map[string]map[string]chan []byte)}
	h.mu <- struct{}{}
	return h
}

func (h *Hub) lock()   { <-h.mu }
func (h *Hub) unlock() { h.mu <- struct{}{} }

// Subscribe registers connID as a local recipient of frames broadcast for
// docID and starts relaying Redis pub/sub traffic to it. The returned
// channel delivers frames until Unsubscribe is called; the caller must
// drain it. The returned cancel function stops the relay goroutine.
func (h *Hub) Subscribe(ctx context.Context, docID, connID string) (<-chan []byte, func()) {
	out := make(chan []byte, 64)

	h.lock()
	if h.subs[docID] == nil {
		h.subs[docID] = make(map[string]chan []byte)
	}
	h.subs[docID][connID] = out
	h.unlock()

	pubsub := h.rdb.Subscribe(ctx, channelName(docID))
	redisCh := pubsub.Channel()

	relayCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-relayCtx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					h.logger.Warnw("fanout: malformed envelope", "error", err)
					continue
				}
				if env.OriginConnID == connID {
					continue
				}
				select {
				case out <- env.Frame:
				default:
					h.logger.Warnw("fanout: dropping frame, subscriber slow", "docId", docID, "connId", connID)
				}
			}
		}
	}()

	return out, func() {
		cancel()
		h.Unsubscribe(docID, connID)
	}
}

// Unsubscribe removes connID as a local recipient for docID.
func (h *Hub) Unsubscribe(docID, connID string) {
	h.lock()
	defer h.unlock()
	if peers, ok := h.subs[docID]; ok {
		if ch, ok := peers[connID]; ok {
			close(ch)
			delete(peers, connID)
		}
		if len(peers) == 0 {
			delete(h.subs, docID)
		}
	}
}

// Broadcast publishes frame to every subscriber of docID, on this replica
// and every other one, except originConnID (typically the frame's author,
// which already has its own copy via a direct ack).
func (h *Hub) Broadcast(ctx context.Context, docID, originConnID string, frame []byte) error {
	env := envelope{OriginConnID: originConnID, Frame: frame}
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "fanout: marshal envelope")
	}
	if err := h.rdb.Publish(ctx, channelName(docID), raw).Err(); err != nil {
		return errors.Wrap(err, "fanout: publish")
	}
	return nil
}
