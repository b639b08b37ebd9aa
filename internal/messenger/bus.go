// Package messenger carries credential request/response traffic between the
// session and an embedding context over a WebSocket.
package messenger

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Bus is a WebSocket connection fanned out to subscribers. Writes are
// serialized; a single read pump distributes inbound messages.
type Bus struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan []byte
	nextID int

	closed    chan struct{}
	closeOnce sync.Once

	log zerolog.Logger
}

// Dial connects to the embedding context's WebSocket endpoint and starts the
// read pump.
func Dial(url string, log zerolog.Logger) (*Bus, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial message bus: %w", err)
	}

	b := &Bus{
		conn:   conn,
		subs:   make(map[int]chan []byte),
		closed: make(chan struct{}),
		log:    log,
	}
	go b.readPump()
	return b, nil
}

func (b *Bus) readPump() {
	defer b.Close()
	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			b.log.Debug().Err(err).Msg("bus read loop ended")
			return
		}
		b.subMu.Lock()
		for _, ch := range b.subs {
			// a slow subscriber drops messages instead of stalling the pump
			select {
			case ch <- raw:
			default:
			}
		}
		b.subMu.Unlock()
	}
}

// Publish writes one message to the embedding context.
func (b *Bus) Publish(msg []byte) error {
	select {
	case <-b.closed:
		return fmt.Errorf("message bus closed")
	default:
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("bus write: %w", err)
	}
	return nil
}

// Subscribe registers a receiver for all inbound messages. The returned
// cancel function releases the subscription; it is safe to call twice.
func (b *Bus) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 8)

	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subMu.Unlock()

	cancel := func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		// Close may already have released the subscription
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Close shuts the connection down and closes every open subscription.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.conn.Close()

		b.subMu.Lock()
		for id, ch := range b.subs {
			delete(b.subs, id)
			close(ch)
		}
		b.subMu.Unlock()
	})
}
