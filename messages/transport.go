package messages

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport is a duplex JSON-envelope channel over a single websocket
// connection, used for the processor<->coordinator link (spec.md §6).
// One Transport wraps one *websocket.Conn; reconnection and the
// queue-replay-on-reconnect behavior live in the caller, which holds the
// matching Queue.
type Transport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The processor/coordinator link is an internal service-to-service
	// connection, not a browser client, so origin checking is not the
	// relevant defense; authentication happens at a higher layer via the
	// Envelope's signer-checked payloads.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Accept upgrades an incoming HTTP request to a websocket Transport.
func Accept(w http.ResponseWriter, r *http.Request) (*Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("messages: websocket upgrade: %w", err)
	}
	return &Transport{conn: conn}, nil
}

// Dial opens a Transport to a peer's websocket endpoint.
func Dial(url string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("messages: websocket dial %s: %w", url, err)
	}
	return &Transport{conn: conn}, nil
}

// Send writes one Envelope as a JSON text frame.
func (t *Transport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(env)
}

// Receive blocks for the next Envelope.
func (t *Transport) Receive() (Envelope, error) {
	var env Envelope
	_, raw, err := t.conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("messages: decoding envelope: %w", err)
	}
	return env, nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}
