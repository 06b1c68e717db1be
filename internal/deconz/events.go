package deconz

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one frame of the gateway's websocket event stream.
type Event struct {
	Type     string          `json:"t"`
	Event    string          `json:"e"`
	Resource string          `json:"r"`
	ID       string          `json:"id"`
	UniqueID string          `json:"uniqueid,omitempty"`
	State    *LightState     `json:"state,omitempty"`
	Attr     json.RawMessage `json:"attr,omitempty"`
}

const (
	EventAdded   = "added"
	EventChanged = "changed"
	EventDeleted = "deleted"

	ResourceLights = "lights"
	ResourceGroups = "groups"
)

// EventStream maintains a websocket connection to the gateway's event
// port and delivers decoded frames on a channel. The connection is
// re-dialed with backoff until the context is canceled.
type EventStream struct {
	url    string
	dialer *websocket.Dialer
	events chan Event
}

// NewEventStream creates a stream for ws://<host>:<port>. The port
// comes from GatewayConfig.WebsocketPort.
func NewEventStream(host string, port int) *EventStream {
	return &EventStream{
		url:    fmt.Sprintf("ws://%s:%d", host, port),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan Event, 16),
	}
}

// Events returns the channel frames are delivered on. It is closed
// when Run returns.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Run dials the gateway and pumps events until ctx is canceled.
// Connection failures are logged and retried with capped backoff.
func (s *EventStream) Run(ctx context.Context) error {
	defer close(s.events)

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			log.Printf("[deconz] Event stream dial %s failed: %v (retrying in %s)", s.url, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}

		log.Printf("[deconz] Event stream connected to %s", s.url)
		backoff = time.Second

		if err := s.pump(ctx, conn); err != nil && ctx.Err() == nil {
			log.Printf("[deconz] Event stream read error: %v (reconnecting)", err)
		}
		conn.Close()
	}
}

// pump reads frames until the connection breaks or ctx is canceled.
// A goroutine watches ctx so a blocked read is interrupted by closing
// the connection.
func (s *EventStream) pump(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Printf("[deconz] Dropping undecodable event frame: %v", err)
			continue
		}
		if ev.Type != "event" {
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
