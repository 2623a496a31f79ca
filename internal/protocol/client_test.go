package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockGateway creates a test websocket gateway.
func mockGateway(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.QueryTimeout = 2 * time.Second
	cfg.RetryRequestDelay = 10 * time.Millisecond
	return cfg
}

// readInit consumes the init frame the client sends after dialing.
func readInit(t *testing.T, conn *websocket.Conn) clientFrame {
	t.Helper()

	var frame clientFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read init frame: %v", err)
	}
	if frame.Type != "init" {
		t.Fatalf("first frame type = %q, want init", frame.Type)
	}
	return frame
}

func registeredCreds() *Credentials {
	return &Credentials{
		ClientID:    "client-1",
		ClientToken: "ct",
		ServerToken: "st",
	}
}

func TestOpen_RegisteredLogin(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		frame := readInit(t, conn)
		if frame.ClientToken != "ct" || frame.ServerToken != "st" {
			t.Errorf("init tokens = %q/%q, want ct/st", frame.ClientToken, frame.ServerToken)
		}
		if frame.Fingerprint != "fp-test" {
			t.Errorf("init fingerprint = %q, want fp-test", frame.Fingerprint)
		}

		conn.WriteJSON(serverFrame{
			Type:        "success",
			Credentials: &Credentials{ClientID: "client-1", ClientToken: "ct2", ServerToken: "st2"},
		})

		// Keep the connection open.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp-test", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	select {
	case creds := <-sess.Opened():
		if creds.ClientToken != "ct2" {
			t.Errorf("refreshed ClientToken = %q, want ct2", creds.ClientToken)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for opened event")
	}

	if !sess.IsOpen() {
		t.Error("expected IsOpen after success frame")
	}
}

func TestOpen_QRChallenge(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		conn.WriteJSON(serverFrame{Type: "qr", Ref: "ref-1"})
		conn.WriteJSON(serverFrame{Type: "qr", Ref: "ref-2"})
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp-test", &Credentials{ClientID: "new"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	for i, want := range []string{"ref-1", "ref-2"} {
		select {
		case ref := <-sess.QR():
			if ref != want {
				t.Errorf("qr %d = %q, want %q", i, ref, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for qr %d", i)
		}
	}

	if sess.IsOpen() {
		t.Error("session should not be open during QR flow")
	}
}

func TestOpen_FailureFrameCarriesStatus(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		conn.WriteJSON(serverFrame{Type: "failure", Code: 401, Message: "invalid token"})
		conn.Close()
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp-test", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	select {
	case ev := <-sess.Closed():
		if ev.StatusCode != 401 {
			t.Errorf("StatusCode = %d, want 401", ev.StatusCode)
		}
		if ev.Message != "invalid token" {
			t.Errorf("Message = %q, want %q", ev.Message, "invalid token")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for closed event")
	}

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after failure")
	}
}

func TestSession_SendWithAck(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		conn.WriteJSON(serverFrame{Type: "success"})

		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type != "message" || frame.Msg == nil || frame.Msg.Text != "hello" {
			t.Errorf("unexpected message frame: %+v", frame)
		}
		conn.WriteJSON(serverFrame{Type: "ack", ID: frame.ID})

		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	<-sess.Opened()

	if err := sess.Send(context.Background(), Message{Chat: "room", Text: "hello"}); err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestSession_SendAckTimeout(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		conn.WriteJSON(serverFrame{Type: "success"})
		// Swallow the message, never ack.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.QueryTimeout = 100 * time.Millisecond

	client := NewClient(cfg, nil)
	sess, err := client.Open(context.Background(), "fp", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	<-sess.Opened()

	if err := sess.Send(context.Background(), Message{Chat: "room", Text: "hi"}); !errors.Is(err, ErrAckTimeout) {
		t.Errorf("Send error = %v, want ErrAckTimeout", err)
	}
}

func TestSession_SendNotLoggedIn(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	if err := sess.Send(context.Background(), Message{Text: "x"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestSession_InboundMessages(t *testing.T) {
	payload, _ := json.Marshal(Message{ID: "m1", Chat: "room", Sender: "alice", Text: "hey"})

	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		conn.WriteJSON(serverFrame{Type: "success"})
		conn.WriteJSON(serverFrame{Type: "message", Msg: payload})
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	select {
	case msg := <-sess.Messages():
		if msg.Sender != "alice" || msg.Text != "hey" {
			t.Errorf("message = %+v, want alice/hey", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound message")
	}
}

func TestSession_Logout(t *testing.T) {
	gotLogout := make(chan struct{}, 1)

	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		conn.WriteJSON(serverFrame{Type: "success"})

		for {
			var frame clientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type == "logout" {
				gotLogout <- struct{}{}
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	<-sess.Opened()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Logout(ctx); err != nil {
		t.Errorf("Logout failed: %v", err)
	}

	select {
	case <-gotLogout:
	case <-time.After(time.Second):
		t.Fatal("gateway never received logout frame")
	}

	if sess.IsOpen() {
		t.Error("session still open after logout")
	}
}

func TestSession_DoubleClose(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		readInit(t, conn)
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), nil)
	sess, err := client.Open(context.Background(), "fp", registeredCreds())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCredentials_Registered(t *testing.T) {
	tests := []struct {
		name  string
		creds *Credentials
		want  bool
	}{
		{"nil", nil, false},
		{"empty", &Credentials{}, false},
		{"client token only", &Credentials{ClientToken: "ct"}, false},
		{"both tokens", &Credentials{ClientToken: "ct", ServerToken: "st"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.Registered(); got != tt.want {
				t.Errorf("Registered() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.KeepAliveInterval != 20*time.Second {
		t.Errorf("KeepAliveInterval = %v, want 20s", cfg.KeepAliveInterval)
	}
	if cfg.QueryTimeout != 60*time.Second {
		t.Errorf("QueryTimeout = %v, want 60s", cfg.QueryTimeout)
	}
	if cfg.BufferSize != 256 {
		t.Errorf("BufferSize = %d, want 256", cfg.BufferSize)
	}
}
