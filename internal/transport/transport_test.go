// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"amplifier/internal/log"
)

// syncBuffer guards a bytes.Buffer shared with the logger.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestLoggingTransportEvery(t *testing.T) {
	var buf syncBuffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	lt := NewLoggingTransport(3)
	for i := range 6 {
		if err := lt.Send(map[string]int{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	if strings.Contains(out, `{"n":0}`) || !strings.Contains(out, `{"n":2}`) || !strings.Contains(out, `{"n":5}`) {
		t.Errorf("unexpected log output:\n%s", out)
	}

	lt.Close()
	if err := lt.Send(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := newWebSocketTransport("test")
	srv := httptest.NewServer(wst.Handler())
	defer srv.Close()
	defer wst.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	type payload struct {
		DBFS float64 `json:"dbfs"`
	}
	if err := wst.Send(payload{DBFS: -12.5}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got payload
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.DBFS != -12.5 {
		t.Errorf("got %+v", got)
	}
}

func TestWebSocketClose(t *testing.T) {
	wst := newWebSocketTransport("test")
	if err := wst.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wst.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wst.Send(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}
