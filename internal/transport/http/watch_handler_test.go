package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeSource struct {
	subscribed chan func(origin string, data []byte)
	stopped    chan string
}

func (f *fakeSource) Subscribe(_ context.Context, roomName string, handler func(origin string, data []byte)) (func(), error) {
	f.subscribed <- handler
	return func() { f.stopped <- roomName }, nil
}

func TestWatchRelaysRoomEvents(t *testing.T) {
	source := &fakeSource{
		subscribed: make(chan func(string, []byte), 1),
		stopped:    make(chan string, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{name}/watch", NewWatchHandler(source, nil).ServeWatch)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/rooms/R1/watch"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var handler func(string, []byte)
	select {
	case handler = <-source.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never subscribed")
	}
	handler("other-instance", []byte(`{"type":"poll_started","payload":{}}`))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"poll_started","payload":{}}` {
		t.Fatalf("unexpected relay %s", data)
	}

	conn.Close()
	select {
	case room := <-source.stopped:
		if room != "R1" {
			t.Fatalf("unsubscribed from %s", room)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not cancelled after spectator left")
	}
}
