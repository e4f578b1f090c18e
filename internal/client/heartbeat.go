// Package client는 Editor Bridge의 세션 재개형 실시간 프로토콜 계층을 구현합니다.
// heartbeat.go는 주기적 ping 전송과 왕복 지연 측정을 담당합니다.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/insajin/editor-bridge/internal/logger"
)

// HeartbeatInterval은 하트비트 전송 간격 기본값입니다.
const HeartbeatInterval = 30 * time.Second

// HeartbeatMonitor는 주기적으로 ping을 전송하고 pong 수신까지의 왕복 지연을 측정합니다.
//
// 미응답 pong으로 연결을 죽었다고 판정하지 않습니다. 생존성 판정은 전송 계층의
// close/error 이벤트에 전적으로 위임됩니다. 늦은 pong을 단절로 오판하는 비용이
// 지연된 pong을 기다리는 비용보다 크기 때문입니다.
//
// 미해결 샘플은 항상 최대 하나입니다. 샘플이 남아 있는 상태에서 다음 tick이
// 오면 새 샘플로 교체합니다 (추월된 ping의 늦은 pong은 무시).
type HeartbeatMonitor struct {
	// interval은 ping 전송 간격입니다.
	interval time.Duration
	// sendPing은 ping 프레임을 전송하는 함수입니다.
	sendPing func() error
	// connected는 전송 계층이 열려 있는지 보고하는 함수입니다.
	connected func() bool
	// onLatency는 측정된 왕복 지연을 전달하는 콜백입니다.
	onLatency func(time.Duration)

	// cancel은 하트비트 고루틴을 취소하는 함수입니다.
	cancel context.CancelFunc
	// cancelMu는 cancel 접근을 보호하는 뮤텍스입니다.
	cancelMu sync.Mutex

	// sampleMu는 측정 샘플 접근을 보호하는 뮤텍스입니다.
	sampleMu sync.Mutex
	// sentAt은 미해결 ping의 전송 시각입니다. 제로 값이면 미해결 샘플이 없습니다.
	sentAt time.Time
	// lastLatency는 마지막으로 측정된 왕복 지연입니다.
	lastLatency time.Duration

	// nowFn은 현재 시각 조회 함수입니다. 테스트에서 주입 가능하도록 필드로 둡니다.
	nowFn func() time.Time
}

// NewHeartbeatMonitor는 새로운 HeartbeatMonitor를 생성합니다.
// interval이 0 이하이면 HeartbeatInterval을 사용합니다.
func NewHeartbeatMonitor(interval time.Duration, sendPing func() error, connected func() bool) *HeartbeatMonitor {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &HeartbeatMonitor{
		interval:  interval,
		sendPing:  sendPing,
		connected: connected,
		nowFn:     time.Now,
	}
}

// OnLatency는 왕복 지연 측정 콜백을 등록합니다.
func (h *HeartbeatMonitor) OnLatency(fn func(time.Duration)) {
	h.onLatency = fn
}

// Start는 하트비트 전송을 시작합니다. 이미 실행 중이면 기존 루프를 취소하고
// 새로 시작합니다.
func (h *HeartbeatMonitor) Start() {
	h.cancelMu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.cancelMu.Unlock()

	go h.loop(ctx)
}

// Stop은 하트비트 전송을 중지합니다. 타이머가 취소되며 이후 ping은 전송되지 않습니다.
func (h *HeartbeatMonitor) Stop() {
	h.cancelMu.Lock()
	defer h.cancelMu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// loop는 주기적으로 ping을 전송합니다.
func (h *HeartbeatMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.connected() {
				continue
			}
			h.probe()
		}
	}
}

// probe는 ping 한 건을 전송하고 전송 시각을 기록합니다.
// 미해결 샘플이 있으면 새 샘플로 교체합니다.
func (h *HeartbeatMonitor) probe() {
	h.sampleMu.Lock()
	h.sentAt = h.nowFn()
	h.sampleMu.Unlock()

	if err := h.sendPing(); err != nil {
		// 전송 실패한 ping의 샘플은 해소될 수 없으므로 제거합니다.
		// 연결 단절 처리는 전송 계층의 close 이벤트가 담당합니다.
		h.sampleMu.Lock()
		h.sentAt = time.Time{}
		h.sampleMu.Unlock()

		logger.Debug().Err(err).Msg("하트비트 전송 실패")
	}
}

// OnPong은 pong 수신을 처리합니다. 미해결 샘플이 있으면 왕복 지연을 계산하고
// 샘플을 해소합니다. 선행 ping 없는 pong은 무시됩니다.
func (h *HeartbeatMonitor) OnPong() {
	h.sampleMu.Lock()
	if h.sentAt.IsZero() {
		h.sampleMu.Unlock()
		return
	}
	latency := h.nowFn().Sub(h.sentAt)
	h.sentAt = time.Time{}
	h.lastLatency = latency
	h.sampleMu.Unlock()

	logger.Debug().Dur("latency", latency).Msg("하트비트 왕복 지연 측정")

	if h.onLatency != nil {
		h.onLatency(latency)
	}
}

// LastLatency는 마지막으로 측정된 왕복 지연을 반환합니다.
// 아직 측정된 값이 없으면 0을 반환합니다.
func (h *HeartbeatMonitor) LastLatency() time.Duration {
	h.sampleMu.Lock()
	defer h.sampleMu.Unlock()
	return h.lastLatency
}

// Outstanding은 미해결 ping 샘플이 있는지 반환합니다.
func (h *HeartbeatMonitor) Outstanding() bool {
	h.sampleMu.Lock()
	defer h.sampleMu.Unlock()
	return !h.sentAt.IsZero()
}
