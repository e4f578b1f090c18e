// Package client는 Editor Bridge의 세션 재개형 실시간 프로토콜 계층을 구현합니다.
// client.go는 전송, 대기열, 하트비트, 재연결, 세션 관리를 하나의 파사드로 묶습니다.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/insajin/editor-bridge/internal/logger"
	"github.com/insajin/editor-bridge/internal/metrics"
	"github.com/insajin/editor-bridge/internal/protocol"
	"github.com/insajin/editor-bridge/internal/storage"
)

// ConnectionState는 클라이언트의 연결 상태를 나타냅니다.
type ConnectionState int32

const (
	// StateDisconnected는 연결이 없는 상태입니다.
	StateDisconnected ConnectionState = iota
	// StateConnecting은 연결 시도 중인 상태입니다.
	StateConnecting
	// StateOpen은 연결이 열려 있는 상태입니다.
	StateOpen
	// StateClosing은 명시적 종료가 진행 중인 상태입니다.
	StateClosing
)

// String은 ConnectionState의 문자열 표현을 반환합니다.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Client는 에이전트 백엔드와의 실시간 채널을 관리하는 파사드입니다.
// 상위 계층은 이 타입 하나만 바라봅니다: 연결하고, 메시지를 보내고,
// 수신·상태 콜백을 등록하면 재연결, 대기열, 세션 재개는 내부에서 처리됩니다.
//
// Send는 오류를 반환하지 않습니다. 전송할 수 없는 메시지는 송신 대기열에
// 보관되었다가 다음 연결 성공 시 순서대로 전송됩니다. 상위 계층이 알아야
// 하는 것은 연결 상태(OnStatusChange)와 대기열 유실 알림(OnLog)뿐입니다.
type Client struct {
	serverURL string

	transport *Transport
	queue     *OutboundQueue
	heartbeat *HeartbeatMonitor
	reconnect *ReconnectController
	session   *SessionManager
	metrics   *metrics.Metrics

	// state는 현재 연결 상태입니다 (ConnectionState 값).
	state atomic.Int32
	// manualClose는 명시적 Disconnect 여부입니다. 참이면 자동 재연결을 하지 않습니다.
	manualClose atomic.Bool
	// lastConnected는 마지막으로 통지한 연결 상태입니다. 중복 통지를 막습니다.
	lastConnected atomic.Bool

	// 콜백 등록은 Connect 전에 끝나야 합니다.
	callbackMu     sync.RWMutex
	onMessage      func(protocol.Message)
	onStatusChange func(connected bool)
	onLog          func(message string)

	// 생성 시 옵션으로 조정되는 파라미터
	heartbeatInterval time.Duration
	queueSize         int
	connectTimeout    time.Duration
	initialDelay      time.Duration
	maxDelay          time.Duration
	maxAttempts       int
	sessionExpiry     time.Duration
}

// Option은 Client 생성 옵션입니다.
type Option func(*Client)

// WithHeartbeatInterval은 하트비트 전송 간격을 설정합니다.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) { c.heartbeatInterval = d }
}

// WithQueueSize는 송신 대기열 최대 크기를 설정합니다.
func WithQueueSize(n int) Option {
	return func(c *Client) { c.queueSize = n }
}

// WithConnectTimeout은 연결 핸드셰이크 타임아웃을 설정합니다.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithReconnectPolicy는 재연결 지연과 최대 시도 횟수를 설정합니다.
func WithReconnectPolicy(initialDelay, maxDelay time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.initialDelay = initialDelay
		c.maxDelay = maxDelay
		c.maxAttempts = maxAttempts
	}
}

// WithSessionExpiry는 세션 만료 시간을 설정합니다.
func WithSessionExpiry(d time.Duration) Option {
	return func(c *Client) { c.sessionExpiry = d }
}

// NewClient는 새로운 Client를 생성합니다. store는 세션 레코드 영속화에 사용됩니다.
func NewClient(serverURL string, store storage.Store, opts ...Option) *Client {
	c := &Client{
		serverURL:         serverURL,
		heartbeatInterval: HeartbeatInterval,
		queueSize:         DefaultMaxQueueSize,
		connectTimeout:    ConnectTimeout,
		initialDelay:      DefaultInitialReconnectDelay,
		maxDelay:          DefaultMaxReconnectDelay,
		maxAttempts:       DefaultMaxReconnectAttempts,
		sessionExpiry:     DefaultSessionExpiry,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.metrics = metrics.NewMetrics()

	c.transport = NewTransport(c.connectTimeout)
	c.transport.OnMessage(c.handleRaw)
	c.transport.OnClose(c.handleClose)

	c.queue = NewOutboundQueue(c.queueSize)
	c.reconnect = NewReconnectController(c.initialDelay, c.maxDelay, c.maxAttempts)
	c.session = NewSessionManager(store, c.sessionExpiry)

	c.heartbeat = NewHeartbeatMonitor(c.heartbeatInterval, c.sendPing, c.transport.IsOpen)
	c.heartbeat.OnLatency(c.metrics.RecordLatency)

	return c
}

// OnMessage는 애플리케이션 메시지 수신 콜백을 등록합니다.
// pong과 session_state는 내부에서 소비되며 이 콜백으로 전달되지 않습니다.
func (c *Client) OnMessage(fn func(protocol.Message)) {
	c.callbackMu.Lock()
	c.onMessage = fn
	c.callbackMu.Unlock()
}

// OnStatusChange는 연결 상태 변화 콜백을 등록합니다.
// 상태가 실제로 바뀔 때만 호출됩니다.
func (c *Client) OnStatusChange(fn func(connected bool)) {
	c.callbackMu.Lock()
	c.onStatusChange = fn
	c.callbackMu.Unlock()
}

// OnLog는 사용자에게 보여줄 운영 메시지 콜백을 등록합니다
// (재연결 대기, 대기열 유실, 재연결 포기 등).
func (c *Client) OnLog(fn func(message string)) {
	c.callbackMu.Lock()
	c.onLog = fn
	c.callbackMu.Unlock()
}

// State는 현재 연결 상태를 반환합니다.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Session은 현재 세션의 복사본을 반환합니다. 세션이 없으면 nil입니다.
func (c *Client) Session() *Session {
	return c.session.Current()
}

// QueueLen은 송신 대기열에 대기 중인 메시지 수를 반환합니다.
func (c *Client) QueueLen() int {
	return c.queue.Len()
}

// LastLatency는 마지막 하트비트 왕복 지연을 반환합니다.
func (c *Client) LastLatency() time.Duration {
	return c.heartbeat.LastLatency()
}

// Metrics는 운영 지표를 반환합니다.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// Connect는 서버에 연결합니다. 이미 연결 중이거나 연결된 상태면 아무것도 하지
// 않습니다. 명시적 Connect는 재연결 포기 상태를 해제하고 시도 횟수를 초기화합니다.
//
// 첫 다이얼이 실패하면 오류를 반환하되, 백오프 재연결은 그대로 시작됩니다.
func (c *Client) Connect(ctx context.Context) error {
	c.manualClose.Store(false)
	c.reconnect.Reset()

	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return nil
	}

	if err := c.dial(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		c.scheduleReconnect()
		return err
	}
	return nil
}

// Disconnect는 연결을 명시적으로 종료합니다. 대기 중인 재연결 타이머를
// 취소하며, 이후 자동 재연결은 일어나지 않습니다. 송신 대기열은 보존되어
// 다음 Connect 성공 시 전송됩니다.
func (c *Client) Disconnect() {
	c.manualClose.Store(true)
	c.reconnect.Cancel()
	c.heartbeat.Stop()

	if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		// Close가 onClose를 거쳐 handleClose에서 Disconnected로 마무리합니다.
		c.transport.Close()
		return
	}

	c.state.Store(int32(StateDisconnected))
	c.notifyStatus(false)
}

// Send는 메시지를 전송합니다. 연결이 열려 있지 않거나 전송에 실패하면
// 대기열에 보관합니다. 어떤 경우에도 오류를 반환하지 않습니다.
//
// 연결도 재연결 대기도 없는 완전 유휴 상태에서 호출되면 연결을 시작합니다.
func (c *Client) Send(msg protocol.Message) {
	if c.State() == StateOpen {
		if err := c.transport.Send(msg.Raw); err == nil {
			c.metrics.MessagesSent.Add(1)
			return
		}
		// 전송 실패는 전송 계층의 close 경로가 처리합니다. 메시지는 대기열로.
	}

	c.enqueue(msg)

	if c.State() == StateDisconnected && c.reconnect.State() == ControllerIdle {
		go func() {
			if err := c.Connect(context.Background()); err != nil {
				logger.Debug().Err(err).Msg("전송 트리거 연결 실패")
			}
		}()
	}
}

// SendChat은 채팅 메시지를 전송하고 상관 ID를 반환합니다.
func (c *Client) SendChat(content string) string {
	msg := protocol.NewChat(content)
	c.Send(msg)
	return msg.CorrelationID
}

// SendStop은 현재 에이전트 실행 중단 요청을 전송하고 상관 ID를 반환합니다.
func (c *Client) SendStop() string {
	msg := protocol.NewStop()
	c.Send(msg)
	return msg.CorrelationID
}

// SendOpenFile은 파일 읽기 요청을 전송하고 상관 ID를 반환합니다.
func (c *Client) SendOpenFile(path string) string {
	msg := protocol.NewOpenFile(path)
	c.Send(msg)
	return msg.CorrelationID
}

// ClearSession은 저장된 세션을 제거합니다. 다음 연결은 새 세션으로 시작됩니다.
func (c *Client) ClearSession() {
	c.session.Clear()
}

// dial은 전송 계층을 열고 성공 시 연결 개시 절차를 수행합니다.
// 호출자는 state가 Connecting임을 보장해야 합니다.
func (c *Client) dial(ctx context.Context) error {
	c.metrics.ConnectionAttempts.Add(1)
	logger.Info().Str("url", c.serverURL).Msg("서버 연결 시도")

	if err := c.transport.Open(ctx, c.serverURL); err != nil {
		c.metrics.ConnectionFailures.Add(1)
		logger.Warn().Err(err).Msg("서버 연결 실패")
		return err
	}

	c.handleOpen()
	return nil
}

// handleOpen은 연결 성공 직후의 개시 절차를 수행합니다:
// 재연결 상태 초기화, 하트비트 시작, 세션 재개 핸드셰이크, 대기열 방출.
// 재개 요청은 항상 대기열보다 먼저 전송됩니다.
//
// 다이얼 진행 중에 명시적 Disconnect가 끼어들면 (state가 Connecting에서
// 강제로 Disconnected로 바뀜) 개시를 중단하고 방금 열린 연결을 닫습니다.
func (c *Client) handleOpen() {
	if c.manualClose.Load() ||
		!c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		c.state.Store(int32(StateDisconnected))
		c.transport.Close()
		logger.Info().Msg("종료 요청과 겹친 연결을 닫습니다")
		return
	}

	c.metrics.ConnectionSuccesses.Add(1)
	c.reconnect.Reset()
	c.heartbeat.Start()

	resume := c.session.ResumeMessage()
	if err := c.transport.Send(resume.Raw); err != nil {
		// 전송 실패는 곧 close 이벤트로 이어지므로 여기서는 기록만 합니다.
		logger.Warn().Err(err).Msg("세션 재개 요청 전송 실패")
	} else {
		c.metrics.MessagesSent.Add(1)
	}

	sent, err := c.queue.Drain(func(m protocol.Message) error {
		if sendErr := c.transport.Send(m.Raw); sendErr != nil {
			return sendErr
		}
		c.metrics.MessagesSent.Add(1)
		return nil
	})
	if sent > 0 {
		c.emitLog(fmt.Sprintf("대기 중이던 메시지 %d건을 전송했습니다", sent))
	}
	if err != nil {
		logger.Warn().Err(err).Int("sent", sent).Msg("대기열 방출 중단")
	}

	logger.Info().Str("url", c.serverURL).Msg("서버 연결 완료")
	c.notifyStatus(true)
}

// handleClose는 전송 계층의 종료 이벤트를 처리합니다. 연결당 정확히 한 번
// 호출되므로 재연결 트리거도 정확히 한 번 일어납니다.
func (c *Client) handleClose(err error) {
	c.heartbeat.Stop()

	if err != nil {
		logger.Warn().Err(err).Msg("연결이 끊어졌습니다")
	} else {
		logger.Info().Msg("연결이 종료되었습니다")
	}

	c.state.Store(int32(StateDisconnected))
	c.notifyStatus(false)

	if c.manualClose.Load() {
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect는 다음 재연결 시도를 예약합니다.
// 최대 시도 횟수를 소진하면 포기를 통지하고, 이후에는 명시적 Connect나
// 완전 유휴 상태에서의 Send만이 연결을 재개할 수 있습니다.
func (c *Client) scheduleReconnect() {
	if c.manualClose.Load() {
		return
	}

	delay, ok := c.reconnect.NextDelay()
	if !ok {
		c.metrics.GiveUps.Add(1)
		logger.Error().Int("max_attempts", c.reconnect.MaxAttempts()).Msg("재연결 포기")
		c.emitLog(fmt.Sprintf("연결 실패: 재연결을 %d회 시도했지만 실패했습니다", c.reconnect.MaxAttempts()))
		return
	}

	attempt := c.reconnect.Attempt()
	logger.Info().
		Int("attempt", attempt).
		Int("max_attempts", c.reconnect.MaxAttempts()).
		Dur("delay", delay).
		Msg("재연결 대기")
	c.emitLog(fmt.Sprintf("재연결 대기 중 (%d/%d, %s 후)", attempt, c.reconnect.MaxAttempts(), delay))

	c.reconnect.Schedule(delay, func() {
		if c.manualClose.Load() {
			return
		}
		if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
			return
		}

		c.metrics.Reconnections.Add(1)
		if err := c.dial(context.Background()); err != nil {
			c.state.Store(int32(StateDisconnected))
			c.scheduleReconnect()
		}
	})
}

// handleRaw는 수신된 원시 프레임을 라우팅합니다. pong은 하트비트로,
// session_state는 세션 관리자로 흡수되고 나머지는 상관 ID를 기록한 뒤
// 수신 콜백으로 전달됩니다. 해석 불가능한 프레임은 버립니다.
func (c *Client) handleRaw(data []byte) {
	c.metrics.MessagesReceived.Add(1)

	msg, err := protocol.Parse(data)
	if err != nil {
		c.metrics.MessageErrors.Add(1)
		logger.Warn().Err(err).Msg("해석할 수 없는 메시지를 버립니다")
		return
	}

	switch msg.Kind() {
	case protocol.KindPong:
		c.heartbeat.OnPong()

	case protocol.KindSessionState:
		st, err := msg.SessionState()
		if err != nil {
			c.metrics.MessageErrors.Add(1)
			logger.Warn().Err(err).Msg("session_state 해석 실패")
			return
		}
		c.session.OnSessionState(st)

	default:
		if msg.CorrelationID != "" {
			c.session.UpdateLastCorrelationID(msg.CorrelationID)
		}

		c.callbackMu.RLock()
		fn := c.onMessage
		c.callbackMu.RUnlock()
		if fn != nil {
			fn(msg)
		}
	}
}

// enqueue는 메시지를 대기열에 넣고 유실 발생 시 통지합니다.
func (c *Client) enqueue(msg protocol.Message) {
	dropped := c.queue.Enqueue(msg)
	c.metrics.MessagesQueued.Add(1)
	c.metrics.ObserveQueueDepth(c.queue.Len())

	if dropped {
		c.metrics.QueueDrops.Add(1)
		logger.Warn().Int("queue_size", c.queue.Len()).Msg("대기열이 가득 차 가장 오래된 메시지를 버렸습니다")
		c.emitLog("송신 대기열이 가득 차 가장 오래된 메시지가 유실되었습니다")
	}
}

// sendPing은 하트비트 ping을 전송합니다.
func (c *Client) sendPing() error {
	if err := c.transport.Send(protocol.NewPing().Raw); err != nil {
		return err
	}
	c.metrics.MessagesSent.Add(1)
	return nil
}

// notifyStatus는 연결 상태 변화를 통지합니다. 같은 상태의 중복 통지는 걸러냅니다.
func (c *Client) notifyStatus(connected bool) {
	if c.lastConnected.Swap(connected) == connected {
		return
	}

	c.callbackMu.RLock()
	fn := c.onStatusChange
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}

// emitLog는 운영 메시지를 사용자 콜백으로 전달합니다.
func (c *Client) emitLog(message string) {
	c.callbackMu.RLock()
	fn := c.onLog
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(message)
	}
}
