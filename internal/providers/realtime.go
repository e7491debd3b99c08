// Package providers - realtime.go adapts a websocket connection to the
// duplex RealtimeSession contract.
package providers

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// WebSocketSession adapts a *websocket.Conn to RealtimeSession. Frames are
// binary messages; text messages from the provider are passed through
// unchanged as raw bytes.
type WebSocketSession struct {
	conn *websocket.Conn
}

// NewWebSocketSession wraps an established websocket connection.
func NewWebSocketSession(conn *websocket.Conn) *WebSocketSession {
	return &WebSocketSession{conn: conn}
}

// DialRealtime opens a websocket session to a realtime provider endpoint.
func DialRealtime(ctx context.Context, url string, headers map[string]string) (*WebSocketSession, error) {
	opts := &websocket.DialOptions{}
	if len(headers) > 0 {
		opts.HTTPHeader = make(map[string][]string, len(headers))
		for k, v := range headers {
			opts.HTTPHeader[k] = []string{v}
		}
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}
	return NewWebSocketSession(conn), nil
}

// Send writes one binary audio frame.
func (s *WebSocketSession) Send(ctx context.Context, frame []byte) error {
	return s.conn.Write(ctx, websocket.MessageBinary, frame)
}

// Receive reads the next frame.
func (s *WebSocketSession) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

// Close terminates the session with a normal closure.
func (s *WebSocketSession) Close(_ context.Context) error {
	return s.conn.Close(websocket.StatusNormalClosure, "session complete")
}

var _ RealtimeSession = (*WebSocketSession)(nil)
