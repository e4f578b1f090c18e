package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader는 모의 서버용 공용 WebSocket 업그레이더입니다.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsURL은 httptest 서버의 http URL을 ws URL로 변환합니다.
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// echoServer는 수신한 프레임을 그대로 돌려주는 모의 서버를 생성합니다.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("업그레이드 실패: %v", err)
			return
		}
		defer conn.Close()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
}

// TestTransport_SendBeforeOpen은 연결 전 전송이 ErrNotConnected를 반환하는지
// 검증합니다.
func TestTransport_SendBeforeOpen(t *testing.T) {
	tr := NewTransport(time.Second)

	if err := tr.Send([]byte(`{"type":"ping"}`)); err != ErrNotConnected {
		t.Errorf("Send() error = %v, want %v", err, ErrNotConnected)
	}
}

// TestTransport_RoundTrip은 연결, 전송, 수신이 동작하는지 검증합니다.
func TestTransport_RoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	received := make(chan []byte, 1)
	tr := NewTransport(time.Second)
	tr.OnMessage(func(data []byte) { received <- data })

	if err := tr.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer tr.Close()

	if !tr.IsOpen() {
		t.Fatal("Open 후 IsOpen() = false")
	}

	payload := []byte(`{"type":"chat","content":"안녕"}`)
	if err := tr.Send(payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case data := <-received:
		if string(data) != string(payload) {
			t.Errorf("수신 데이터 = %s, want %s", data, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("에코 응답 수신 시간 초과")
	}
}

// TestTransport_OnCloseExactlyOnce는 서버 측 종료 시 onClose가 정확히 한 번
// 호출되는지 검증합니다.
func TestTransport_OnCloseExactlyOnce(t *testing.T) {
	connCh := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	defer server.Close()

	var closes atomic.Int32
	closed := make(chan struct{}, 1)
	tr := NewTransport(time.Second)
	tr.OnClose(func(err error) {
		closes.Add(1)
		closed <- struct{}{}
	})

	if err := tr.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// 서버가 연결을 끊음
	serverConn := <-connCh
	serverConn.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("onClose 호출 시간 초과")
	}

	// 클라이언트 측에서 중복 Close해도 추가 호출 없음
	tr.Close()
	tr.Close()

	time.Sleep(50 * time.Millisecond)
	if n := closes.Load(); n != 1 {
		t.Errorf("onClose 호출 수 = %d, want 1", n)
	}
	if tr.IsOpen() {
		t.Error("종료 후 IsOpen() = true")
	}
}

// TestTransport_CloseIdempotent는 Close가 멱등적인지 검증합니다.
func TestTransport_CloseIdempotent(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	var closes atomic.Int32
	tr := NewTransport(time.Second)
	tr.OnClose(func(err error) { closes.Add(1) })

	if err := tr.Open(context.Background(), wsURL(server)); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tr.Close()
	tr.Close()
	tr.Close()

	time.Sleep(50 * time.Millisecond)
	if n := closes.Load(); n != 1 {
		t.Errorf("onClose 호출 수 = %d, want 1", n)
	}
}

// TestTransport_OpenInvalidURL은 잘못된 URL로 연결 시 오류를 반환하는지
// 검증합니다.
func TestTransport_OpenInvalidURL(t *testing.T) {
	tr := NewTransport(100 * time.Millisecond)

	if err := tr.Open(context.Background(), "ws://127.0.0.1:1/ws"); err == nil {
		t.Error("연결 불가 주소에서 Open() error = nil")
	}
	if tr.IsOpen() {
		t.Error("연결 실패 후 IsOpen() = true")
	}
}
