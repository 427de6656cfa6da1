// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/cardiostat/internal/config"
	"github.com/Thermoquad/cardiostat/pkg/bmd101"
)

// fakeConn is a Connection over an in-memory reader
type fakeConn struct {
	r      io.Reader
	closed atomic.Bool
}

func newFakeConn(data []byte) *fakeConn {
	return &fakeConn{r: bytes.NewReader(data)}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func encodeFrame(t *testing.T, b *bmd101.FrameBuilder) []byte {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

// bridgeServer serves chunks as WebSocket messages and then closes
func bridgeServer(t *testing.T, auth *atomic.Value, messages ...func(*websocket.Conn) error) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			auth.Store(r.Header.Get("Authorization"))
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		for _, send := range messages {
			if err := send(c); err != nil {
				return
			}
		}
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// Wait for the client's close reply
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func binary(data []byte) func(*websocket.Conn) error {
	return func(c *websocket.Conn) error {
		return c.WriteMessage(websocket.BinaryMessage, data)
	}
}

func text(s string) func(*websocket.Conn) error {
	return func(c *websocket.Conn) error {
		return c.WriteMessage(websocket.TextMessage, []byte(s))
	}
}

func TestWebSocketConnection_Read(t *testing.T) {
	frame1 := encodeFrame(t, bmd101.NewFrameBuilder().RawSample(100))
	frame2 := encodeFrame(t, bmd101.NewFrameBuilder().HeartRate(72))

	var auth atomic.Value
	wsURL := bridgeServer(t, &auth,
		text("bridge ready"),
		binary(frame1),
		binary(nil),
		binary(frame2),
	)

	conn, err := OpenWebSocketConnection(wsURL, "user", "secret", false)
	require.NoError(t, err)
	defer conn.Close()

	var got []byte
	buf := make([]byte, 3) // smaller than a frame to exercise buffering
	for {
		n, err := conn.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			require.True(t, errors.Is(err, ErrConnectionClosed), "unexpected error: %v", err)
			break
		}
	}

	require.Equal(t, append(frame1, frame2...), got)
	require.Equal(t, "Basic dXNlcjpzZWNyZXQ=", auth.Load())

	// Reads after close keep failing
	_, err = conn.Read(buf)
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWebSocketConnection_NoAuthWithoutPassword(t *testing.T) {
	var auth atomic.Value
	wsURL := bridgeServer(t, &auth)

	conn, err := OpenWebSocketConnection(wsURL, "user", "", false)
	require.NoError(t, err)
	conn.Close()
	require.Equal(t, "", auth.Load())
}

func TestOpenWebSocketConnection_BadScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://localhost/ws", "", "", false)
	require.ErrorContains(t, err, "unsupported URL scheme")
}

func TestOpenConnection_NothingConfigured(t *testing.T) {
	_, _, err := OpenConnection(&config.Config{})
	require.ErrorContains(t, err, "--port or --url")
}

func TestOpenConnection_WebSocket(t *testing.T) {
	wsURL := bridgeServer(t, nil)

	cfg := &config.Config{}
	cfg.WebSocket.URL = wsURL
	cfg.Serial.Port = "/dev/does-not-exist"

	conn, info, err := OpenConnection(cfg)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, "WebSocket: "+wsURL, info)
}

func TestOpenConnection_BadSerialPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.Serial.Port = "/dev/cardiostat-does-not-exist"
	cfg.Serial.Baud = 57600

	_, _, err := OpenConnection(cfg)
	require.ErrorContains(t, err, "failed to open serial port")
}
