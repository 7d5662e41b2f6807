package apihttp

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"streamgate/internal/domain"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode ws message: %v", err)
	}
	return msg
}

func TestWSBroadcastSessions(t *testing.T) {
	env := newTestEnv(t)
	env.createReady(t, "pushed", testData(512))

	srv := httptest.NewServer(env.server)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	// Give the hub a moment to register the client.
	time.Sleep(50 * time.Millisecond)
	env.server.BroadcastSessions()

	msg := readWSMessage(t, conn, time.Second)
	if msg.Type != "sessions" {
		t.Fatalf("message type = %q, want sessions", msg.Type)
	}
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	var summaries []domain.SessionSummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Name != "pushed" {
		t.Fatalf("summaries = %+v", summaries)
	}
}

// Broadcasting while clients come and go must not observe the hub's client
// map outside the run goroutine.
func TestWSBroadcastDuringClientChurn(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server)
	defer srv.Close()

	stop := make(chan struct{})
	broadcasterDone := make(chan struct{})
	go func() {
		defer close(broadcasterDone)
		for {
			select {
			case <-stop:
				return
			default:
				env.server.BroadcastSessions()
			}
		}
	}()

	for i := 0; i < 20; i++ {
		conn := dialWS(t, srv)
		conn.Close()
	}

	close(stop)
	select {
	case <-broadcasterDone:
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestWSBroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			env.server.BroadcastSessions()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast without clients blocked")
	}
}
