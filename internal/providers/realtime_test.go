package providers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/audio-gateway/internal/providers"
)

// echoServer accepts one websocket connection and echoes frames back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			kind, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := conn.Write(r.Context(), kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSession_SendReceiveRoundTrip(t *testing.T) {
	srv := echoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := providers.DialRealtime(ctx, wsURL(srv), map[string]string{
		"Authorization": "Bearer test-token",
	})
	require.NoError(t, err)

	frame := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, session.Send(ctx, frame))

	echoed, err := session.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, frame, echoed)

	assert.NoError(t, session.Close(ctx))
}

func TestDialRealtime_FailsOnRefusedEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := providers.DialRealtime(ctx, "ws://127.0.0.1:1/realtime", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realtime endpoint")
}
