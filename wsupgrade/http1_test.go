package wsupgrade_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/firasghr/browserclient/wsupgrade"
)

func TestDialHTTP1EchoesTextMessage(t *testing.T) {
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

	u, _ := url.Parse(strings.Replace(srv.URL, "http://", "ws://", 1))
	conn, _, err := wsupgrade.DialHTTP1(context.Background(), u, http.Header{}, nil, (&net.Dialer{}).DialContext, nil)
	if err != nil {
		t.Fatalf("DialHTTP1: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(wsupgrade.Message{Type: wsupgrade.Text, Payload: []byte("hello")}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if reply.Type != wsupgrade.Text || string(reply.Payload) != "hello" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
