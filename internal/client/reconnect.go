// Package client는 Editor Bridge의 세션 재개형 실시간 프로토콜 계층을 구현합니다.
// reconnect.go는 지수 백오프 재연결 상태 기계를 구현합니다.
package client

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// 재연결 기본값
const (
	// DefaultMaxReconnectAttempts는 최대 재연결 시도 횟수입니다.
	// 초과 시 자동 재연결을 포기하며, 명시적 Connect 호출로만 재개됩니다.
	DefaultMaxReconnectAttempts = 5

	// DefaultInitialReconnectDelay는 첫 재연결 시도 전 대기 시간입니다.
	DefaultInitialReconnectDelay = time.Second

	// DefaultMaxReconnectDelay는 재연결 대기 시간 상한입니다.
	DefaultMaxReconnectDelay = 5 * time.Second
)

// ControllerState는 재연결 컨트롤러의 상태를 나타냅니다.
type ControllerState int

const (
	// ControllerIdle은 재연결이 진행 중이지 않은 상태입니다.
	ControllerIdle ControllerState = iota
	// ControllerWaiting은 다음 재연결 시도를 대기 중인 상태입니다.
	ControllerWaiting
	// ControllerGivenUp은 최대 시도 횟수를 소진하여 포기한 상태입니다.
	ControllerGivenUp
)

// String은 ControllerState의 문자열 표현을 반환합니다.
func (s ControllerState) String() string {
	switch s {
	case ControllerIdle:
		return "idle"
	case ControllerWaiting:
		return "waiting"
	case ControllerGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// ReconnectController는 전송 계층 단절 시 지수 백오프 재연결을 관장하는
// 상태 기계입니다. 대기 시간은 초기 지연에서 시작해 2배씩 증가하며 상한에서
// 멈춥니다 (기본: 1초, 2초, 4초, 이후 5초 고정).
//
// 재연결 타이머는 컨트롤러가 소유하며 Cancel로 명시적으로 취소됩니다.
// 어떤 경로로든 연결이 성공하면 Reset으로 시도 횟수를 초기화해야 합니다.
type ReconnectController struct {
	// mu는 컨트롤러 상태 접근을 보호하는 뮤텍스입니다.
	mu sync.Mutex

	// backoff는 지연 시간 계산기입니다. 무작위 지터 없이 결정적으로 동작합니다.
	backoff *backoff.ExponentialBackOff
	// maxAttempts는 최대 재연결 시도 횟수입니다.
	maxAttempts int

	// attempt는 현재까지의 재연결 시도 횟수입니다.
	attempt int
	// givenUp은 최대 시도 횟수 소진 여부입니다.
	givenUp bool
	// timer는 대기 중인 재연결 타이머입니다. nil이면 대기 중이 아닙니다.
	timer *time.Timer
}

// NewReconnectController는 새로운 ReconnectController를 생성합니다.
// 0 이하의 인자는 기본값으로 보정됩니다.
func NewReconnectController(initialDelay, maxDelay time.Duration, maxAttempts int) *ReconnectController {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialReconnectDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxReconnectDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialDelay
	b.RandomizationFactor = 0 // 결정적 지연 (지터 없음)
	b.Multiplier = 2.0
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0 // 횟수로만 제한
	b.Reset()

	return &ReconnectController{
		backoff:     b,
		maxAttempts: maxAttempts,
	}
}

// NextDelay는 다음 재연결 시도까지의 대기 시간을 반환합니다.
// 최대 시도 횟수를 소진했으면 ok=false를 반환하고 GivenUp 상태로 전환합니다.
// GivenUp 상태에서는 Reset 전까지 항상 ok=false입니다.
func (r *ReconnectController) NextDelay() (delay time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.givenUp {
		return 0, false
	}
	if r.attempt >= r.maxAttempts {
		r.givenUp = true
		return 0, false
	}

	r.attempt++
	d := r.backoff.NextBackOff()
	if d == backoff.Stop {
		r.givenUp = true
		return 0, false
	}
	return d, true
}

// Schedule은 delay 후 fn을 실행하는 타이머를 설정합니다.
// 기존 대기 타이머가 있으면 교체합니다.
func (r *ReconnectController) Schedule(delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		r.timer = nil
		r.mu.Unlock()
		fn()
	})
}

// Cancel은 대기 중인 재연결 타이머를 취소합니다.
// 명시적 disconnect 시 호출되어 자동 재연결을 중단합니다.
func (r *ReconnectController) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Reset은 시도 횟수와 GivenUp 상태를 초기화합니다.
// 연결 성공 시, 그리고 명시적 Connect 호출 시 호출해야 합니다.
func (r *ReconnectController) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.attempt = 0
	r.givenUp = false
	r.backoff.Reset()
}

// Attempt는 현재까지의 재연결 시도 횟수를 반환합니다.
func (r *ReconnectController) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// MaxAttempts는 최대 재연결 시도 횟수를 반환합니다.
func (r *ReconnectController) MaxAttempts() int {
	return r.maxAttempts
}

// State는 컨트롤러의 현재 상태를 반환합니다.
func (r *ReconnectController) State() ControllerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.givenUp:
		return ControllerGivenUp
	case r.timer != nil:
		return ControllerWaiting
	default:
		return ControllerIdle
	}
}
