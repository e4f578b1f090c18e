package client

import (
	"sync/atomic"
	"testing"
	"time"
)

// TestReconnect_DelaySequence는 지연 시간이 1초, 2초, 4초, 5초, 5초로
// 증가하는지 검증합니다 (2배 증가, 5초 상한).
func TestReconnect_DelaySequence(t *testing.T) {
	r := NewReconnectController(time.Second, 5*time.Second, 5)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}

	for i, w := range want {
		delay, ok := r.NextDelay()
		if !ok {
			t.Fatalf("시도 %d: NextDelay() ok = false, want true", i+1)
		}
		if delay != w {
			t.Errorf("시도 %d: delay = %v, want %v", i+1, delay, w)
		}
	}
}

// TestReconnect_GiveUpAfterMaxAttempts는 최대 시도 횟수 소진 후 포기
// 상태로 전환되는지 검증합니다.
func TestReconnect_GiveUpAfterMaxAttempts(t *testing.T) {
	r := NewReconnectController(time.Millisecond, 5*time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		if _, ok := r.NextDelay(); !ok {
			t.Fatalf("시도 %d에서 조기 포기", i+1)
		}
	}

	// 4번째 요청은 포기
	if _, ok := r.NextDelay(); ok {
		t.Fatal("최대 시도 횟수 소진 후에도 NextDelay() ok = true")
	}
	if r.State() != ControllerGivenUp {
		t.Errorf("State() = %v, want %v", r.State(), ControllerGivenUp)
	}

	// 포기 상태에서는 반복 요청해도 항상 거부
	if _, ok := r.NextDelay(); ok {
		t.Error("포기 상태에서 NextDelay() ok = true")
	}
}

// TestReconnect_ResetRestoresSequence는 Reset 후 시도 횟수와 지연 시간이
// 처음부터 다시 시작되는지 검증합니다.
func TestReconnect_ResetRestoresSequence(t *testing.T) {
	r := NewReconnectController(time.Second, 5*time.Second, 5)

	r.NextDelay()
	r.NextDelay()
	r.NextDelay()

	r.Reset()

	if r.Attempt() != 0 {
		t.Errorf("Reset 후 Attempt() = %d, want 0", r.Attempt())
	}
	if r.State() != ControllerIdle {
		t.Errorf("Reset 후 State() = %v, want %v", r.State(), ControllerIdle)
	}

	delay, ok := r.NextDelay()
	if !ok || delay != time.Second {
		t.Errorf("Reset 후 첫 delay = %v (ok=%v), want 1s", delay, ok)
	}
}

// TestReconnect_ResetClearsGiveUp은 포기 상태가 Reset으로 해제되는지 검증합니다.
func TestReconnect_ResetClearsGiveUp(t *testing.T) {
	r := NewReconnectController(time.Millisecond, 5*time.Millisecond, 1)

	r.NextDelay()
	if _, ok := r.NextDelay(); ok {
		t.Fatal("포기 상태 전환 실패")
	}

	r.Reset()

	if _, ok := r.NextDelay(); !ok {
		t.Error("Reset 후에도 NextDelay() ok = false")
	}
}

// TestReconnect_ScheduleAndCancel은 타이머 예약과 취소를 검증합니다.
func TestReconnect_ScheduleAndCancel(t *testing.T) {
	r := NewReconnectController(time.Second, 5*time.Second, 5)

	var fired atomic.Bool
	r.Schedule(20*time.Millisecond, func() { fired.Store(true) })

	if r.State() != ControllerWaiting {
		t.Errorf("예약 후 State() = %v, want %v", r.State(), ControllerWaiting)
	}

	r.Cancel()

	time.Sleep(50 * time.Millisecond)
	if fired.Load() {
		t.Error("취소된 타이머가 실행됨")
	}
	if r.State() != ControllerIdle {
		t.Errorf("취소 후 State() = %v, want %v", r.State(), ControllerIdle)
	}
}

// TestReconnect_ScheduleFires는 예약된 콜백이 실행되는지 검증합니다.
func TestReconnect_ScheduleFires(t *testing.T) {
	r := NewReconnectController(time.Second, 5*time.Second, 5)

	done := make(chan struct{})
	r.Schedule(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("예약된 콜백이 실행되지 않음")
	}

	if r.State() != ControllerIdle {
		t.Errorf("실행 후 State() = %v, want %v", r.State(), ControllerIdle)
	}
}
