package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/firasghr/browserclient/wsupgrade"
)

func TestClientWebSocketEchoesTextMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		defer conn.Close()
		mt, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, payload)
	}))
	defer srv.Close()

	c, err := NewClientBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1)
	conn, err := c.WebSocket(context.Background(), wsURL, WebSocketOptions{})
	if err != nil {
		t.Fatalf("WebSocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(wsupgrade.Message{Type: wsupgrade.Text, Payload: []byte("ping")}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if reply.Type != wsupgrade.Text || string(reply.Payload) != "ping" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestClientWebSocketRejectsUnsupportedScheme(t *testing.T) {
	c, err := NewClientBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := c.WebSocket(context.Background(), "ftp://example.com/", WebSocketOptions{}); err == nil {
		t.Fatal("expected an error for an ftp:// target")
	}
}

func TestClientWebSocketHTTP2RequiresHTTPS(t *testing.T) {
	c, err := NewClientBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = c.WebSocket(context.Background(), "ws://example.com/", WebSocketOptions{ForceHTTP2: true})
	if err == nil {
		t.Fatal("expected an error: HTTP/2 websocket requires https")
	}
}
