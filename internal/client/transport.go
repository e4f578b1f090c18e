// Package client는 Editor Bridge의 세션 재개형 실시간 프로토콜 계층을 구현합니다.
// 단일 WebSocket 연결 위에서 순서가 보장되는 양방향 메시지 채널을 유지하며,
// 연결 단절 시 지수 백오프 재연결과 세션 재개 핸드셰이크를 수행합니다.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/insajin/editor-bridge/internal/logger"
)

// 전송 계층 타이밍 상수
const (
	// MaxMessageSize는 최대 메시지 크기입니다 (1MB).
	MaxMessageSize = 1024 * 1024

	// WriteTimeout은 메시지 쓰기 타임아웃입니다.
	WriteTimeout = 10 * time.Second

	// ConnectTimeout은 연결 핸드셰이크 타임아웃 기본값입니다.
	ConnectTimeout = 30 * time.Second
)

// ErrNotConnected는 연결이 열려 있지 않은 상태에서 전송을 시도할 때 반환됩니다.
var ErrNotConnected = errors.New("연결되지 않은 상태입니다")

// Transport는 단일 WebSocket 연결을 소유하는 전송 계층 래퍼입니다.
// 원시 전송 세부 사항을 숨기고 open/send/close와 수신·종료 콜백만 노출합니다.
//
// onClose는 성공한 open당 정확히 한 번 호출됩니다. 읽기 오류, 서버 측 종료,
// 명시적 Close 중 어느 경로로 연결이 끊어져도 호출 지점은 하나이므로
// 호출자는 재연결 트리거를 한 곳에서만 처리하면 됩니다.
type Transport struct {
	// conn은 현재 WebSocket 연결입니다. nil이면 닫힌 상태입니다.
	conn *websocket.Conn
	// connMu는 conn과 closeOnce 접근을 보호하는 뮤텍스입니다.
	connMu sync.RWMutex

	// writeMu는 WebSocket 쓰기 접근을 보호하는 뮤텍스입니다.
	// gorilla/websocket은 동시 쓰기를 지원하지 않으므로 모든 쓰기를 직렬화합니다.
	writeMu sync.Mutex

	// closeOnce는 연결마다 새로 생성되어 onClose의 단일 호출을 보장합니다.
	closeOnce *sync.Once

	// handshakeTimeout은 다이얼 핸드셰이크 타임아웃입니다.
	handshakeTimeout time.Duration

	// onMessage는 수신된 원시 프레임을 전달하는 콜백입니다. Open 전에 등록해야 합니다.
	onMessage func(data []byte)
	// onClose는 연결 종료를 알리는 콜백입니다. Open 전에 등록해야 합니다.
	onClose func(err error)
}

// NewTransport는 새로운 Transport를 생성합니다.
func NewTransport(handshakeTimeout time.Duration) *Transport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = ConnectTimeout
	}
	return &Transport{handshakeTimeout: handshakeTimeout}
}

// OnMessage는 수신 콜백을 등록합니다. Open 전에 호출해야 합니다.
func (t *Transport) OnMessage(fn func(data []byte)) {
	t.onMessage = fn
}

// OnClose는 종료 콜백을 등록합니다. Open 전에 호출해야 합니다.
func (t *Transport) OnClose(fn func(err error)) {
	t.onClose = fn
}

// Open은 WebSocket 서버에 연결하고 수신 루프를 시작합니다.
// 호출자는 이전 연결이 닫힌 상태임을 보장해야 합니다.
func (t *Transport) Open(ctx context.Context, serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("서버 URL 파싱 실패: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.handshakeTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("WebSocket 연결 실패: %w", err)
	}

	conn.SetReadLimit(MaxMessageSize)

	once := new(sync.Once)

	t.connMu.Lock()
	t.conn = conn
	t.closeOnce = once
	t.connMu.Unlock()

	go t.readLoop(conn, once)

	return nil
}

// IsOpen은 연결이 열려 있는지 반환합니다.
func (t *Transport) IsOpen() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// Send는 원시 프레임을 전송합니다.
// 연결이 열려 있지 않으면 ErrNotConnected를 반환합니다.
func (t *Transport) Send(data []byte) error {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	err := conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("메시지 전송 실패: %w", err)
	}
	return nil
}

// Close는 연결을 닫습니다. 멱등적이며, 모든 종료 경로에서 연결 자원이 해제됩니다.
func (t *Transport) Close() {
	t.connMu.RLock()
	conn := t.conn
	once := t.closeOnce
	t.connMu.RUnlock()

	if conn == nil {
		return
	}

	// 서버에 정상 종료를 알립니다 (실패해도 무방).
	t.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(WriteTimeout),
	)
	t.writeMu.Unlock()

	t.teardown(conn, once, nil)
}

// teardown은 연결을 해제하고 onClose를 정확히 한 번 호출합니다.
// Close와 readLoop 양쪽에서 호출될 수 있으며, once가 중복 호출을 막습니다.
func (t *Transport) teardown(conn *websocket.Conn, once *sync.Once, err error) {
	once.Do(func() {
		t.connMu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.connMu.Unlock()

		_ = conn.Close()

		if t.onClose != nil {
			t.onClose(err)
		}
	})
}

// readLoop는 메시지를 지속적으로 수신합니다.
// gorilla/websocket은 ReadMessage() 에러 후 동일 conn에서 재시도하면 안 되므로,
// 에러 발생 시 즉시 루프를 종료하고 teardown으로 종료를 알립니다.
func (t *Transport) readLoop(conn *websocket.Conn, once *sync.Once) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("수신 루프 panic 복구")
			t.teardown(conn, once, fmt.Errorf("수신 루프 panic: %v", r))
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// 모든 read 에러는 연결 끊김으로 처리합니다.
			t.teardown(conn, once, err)
			return
		}

		if t.onMessage != nil {
			t.onMessage(data)
		}
	}
}
