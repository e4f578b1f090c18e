package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/insajin/editor-bridge/internal/protocol"
)

// memStore는 테스트용 인메모리 스토리지입니다.
type memStore struct {
	data    map[string]string
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string) error {
	if s.failSet {
		return errors.New("디스크 쓰기 실패")
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Remove(key string) error {
	delete(s.data, key)
	return nil
}

// storeSession은 세션 레코드를 스토리지에 직접 기록합니다.
func storeSession(t *testing.T, store *memStore, sess Session) {
	t.Helper()
	data, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("세션 직렬화 실패: %v", err)
	}
	store.data[SessionStorageKey] = string(data)
}

// TestSession_LoadValidSession은 유효한 저장 세션이 로드되는지 검증합니다.
func TestSession_LoadValidSession(t *testing.T) {
	store := newMemStore()
	storeSession(t, store, Session{
		SessionID:         "sess-1",
		LastCorrelationID: "corr-9",
		CreatedAt:         time.Now().Add(-10 * time.Minute).UnixMilli(),
	})

	m := NewSessionManager(store, time.Hour)

	sessionID, lastCID := m.ResumePayload()
	if sessionID != "sess-1" || lastCID != "corr-9" {
		t.Errorf("ResumePayload() = (%q, %q), want (sess-1, corr-9)", sessionID, lastCID)
	}
}

// TestSession_DiscardExpiredOnLoad는 만료된 세션이 로드 시 폐기되고
// 스토리지에서도 제거되는지 검증합니다.
func TestSession_DiscardExpiredOnLoad(t *testing.T) {
	store := newMemStore()
	storeSession(t, store, Session{
		SessionID: "sess-old",
		CreatedAt: time.Now().Add(-2 * time.Hour).UnixMilli(),
	})

	m := NewSessionManager(store, time.Hour)

	if sessionID, _ := m.ResumePayload(); sessionID != "" {
		t.Errorf("만료 세션의 ResumePayload() = %q, want 빈 문자열", sessionID)
	}
	if _, ok := store.data[SessionStorageKey]; ok {
		t.Error("만료 세션이 스토리지에 남아 있음")
	}
}

// TestSession_DiscardCorruptRecord는 손상된 레코드가 새 세션으로 처리되는지
// 검증합니다.
func TestSession_DiscardCorruptRecord(t *testing.T) {
	store := newMemStore()
	store.data[SessionStorageKey] = "{이건 JSON이 아님"

	m := NewSessionManager(store, time.Hour)

	if sessionID, _ := m.ResumePayload(); sessionID != "" {
		t.Errorf("손상 레코드의 ResumePayload() = %q, want 빈 문자열", sessionID)
	}
}

// TestSession_ExpiryAtResumeTime은 로드 후 시간이 지나 만료된 세션이
// 재개 시점에 폐기되는지 검증합니다.
func TestSession_ExpiryAtResumeTime(t *testing.T) {
	store := newMemStore()
	storeSession(t, store, Session{
		SessionID: "sess-1",
		CreatedAt: time.Now().UnixMilli(),
	})

	m := NewSessionManager(store, time.Hour)

	// 로드 시점에는 유효
	if sessionID, _ := m.ResumePayload(); sessionID != "sess-1" {
		t.Fatalf("로드 직후 ResumePayload() = %q, want sess-1", sessionID)
	}

	// 시각을 2시간 뒤로 이동
	m.nowFn = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if sessionID, _ := m.ResumePayload(); sessionID != "" {
		t.Errorf("만료 후 ResumePayload() = %q, want 빈 문자열", sessionID)
	}
	if m.Current() != nil {
		t.Error("만료 후에도 Current()가 세션을 반환함")
	}
}

// TestSession_NewSessionOverwrites는 is_new 응답이 기존 세션을 덮어쓰는지
// 검증합니다.
func TestSession_NewSessionOverwrites(t *testing.T) {
	store := newMemStore()
	storeSession(t, store, Session{
		SessionID:         "sess-old",
		LastCorrelationID: "corr-old",
		CreatedAt:         time.Now().Add(-30 * time.Minute).UnixMilli(),
	})

	m := NewSessionManager(store, time.Hour)
	m.OnSessionState(&protocol.SessionState{SessionID: "sess-new", IsNew: true})

	sess := m.Current()
	if sess == nil || sess.SessionID != "sess-new" {
		t.Fatalf("Current() = %+v, want sess-new", sess)
	}
	if sess.LastCorrelationID != "" {
		t.Errorf("새 세션의 LastCorrelationID = %q, want 빈 문자열", sess.LastCorrelationID)
	}

	// 스토리지에도 새 세션이 저장됨
	stored, ok, err := ReadSession(store)
	if err != nil || !ok {
		t.Fatalf("ReadSession() = (%v, %v)", ok, err)
	}
	if stored.SessionID != "sess-new" {
		t.Errorf("저장된 세션 ID = %q, want sess-new", stored.SessionID)
	}
}

// TestSession_ResumeReconcilesID는 재개 성공 시 로컬 세션 ID가 서버 값으로
// 맞춰지는지 검증합니다.
func TestSession_ResumeReconcilesID(t *testing.T) {
	store := newMemStore()
	storeSession(t, store, Session{
		SessionID:         "sess-1",
		LastCorrelationID: "corr-5",
		CreatedAt:         time.Now().Add(-30 * time.Minute).UnixMilli(),
	})

	m := NewSessionManager(store, time.Hour)
	m.OnSessionState(&protocol.SessionState{
		SessionID:       "sess-1",
		IsNew:           false,
		AgentRunning:    true,
		PendingMessages: 3,
	})

	sess := m.Current()
	if sess == nil || sess.SessionID != "sess-1" {
		t.Fatalf("Current() = %+v, want sess-1", sess)
	}
	// 재개 지점은 보존
	if sess.LastCorrelationID != "corr-5" {
		t.Errorf("LastCorrelationID = %q, want corr-5", sess.LastCorrelationID)
	}
}

// TestSession_UpdateLastCorrelationIDPersists는 상관 ID 갱신이 즉시 저장되는지
// 검증합니다.
func TestSession_UpdateLastCorrelationIDPersists(t *testing.T) {
	store := newMemStore()
	m := NewSessionManager(store, time.Hour)
	m.OnSessionState(&protocol.SessionState{SessionID: "sess-1", IsNew: true})

	m.UpdateLastCorrelationID("corr-1")
	m.UpdateLastCorrelationID("corr-2")

	stored, ok, err := ReadSession(store)
	if err != nil || !ok {
		t.Fatalf("ReadSession() = (%v, %v)", ok, err)
	}
	if stored.LastCorrelationID != "corr-2" {
		t.Errorf("저장된 LastCorrelationID = %q, want corr-2", stored.LastCorrelationID)
	}
}

// TestSession_EmptyCorrelationIDIgnored는 빈 상관 ID가 무시되는지 검증합니다.
func TestSession_EmptyCorrelationIDIgnored(t *testing.T) {
	store := newMemStore()
	m := NewSessionManager(store, time.Hour)
	m.OnSessionState(&protocol.SessionState{SessionID: "sess-1", IsNew: true})
	m.UpdateLastCorrelationID("corr-1")

	m.UpdateLastCorrelationID("")

	if sess := m.Current(); sess.LastCorrelationID != "corr-1" {
		t.Errorf("LastCorrelationID = %q, want corr-1", sess.LastCorrelationID)
	}
}

// TestSession_StorageFailureNotFatal은 저장 실패가 동작을 막지 않는지
// 검증합니다.
func TestSession_StorageFailureNotFatal(t *testing.T) {
	store := newMemStore()
	store.failSet = true

	m := NewSessionManager(store, time.Hour)
	m.OnSessionState(&protocol.SessionState{SessionID: "sess-1", IsNew: true})
	m.UpdateLastCorrelationID("corr-1")

	// 메모리 상태는 정상 유지
	sess := m.Current()
	if sess == nil || sess.SessionID != "sess-1" || sess.LastCorrelationID != "corr-1" {
		t.Errorf("Current() = %+v, want sess-1/corr-1", sess)
	}
}

// TestSession_Clear는 Clear가 메모리와 스토리지를 모두 비우는지 검증합니다.
func TestSession_Clear(t *testing.T) {
	store := newMemStore()
	m := NewSessionManager(store, time.Hour)
	m.OnSessionState(&protocol.SessionState{SessionID: "sess-1", IsNew: true})

	m.Clear()

	if m.Current() != nil {
		t.Error("Clear 후에도 Current()가 세션을 반환함")
	}
	if _, ok := store.data[SessionStorageKey]; ok {
		t.Error("Clear 후에도 스토리지에 레코드가 남음")
	}
}

// TestSession_ConcurrentReadersAndWriters는 수신 루프의 세션 갱신과 임의
// 고루틴의 조회가 동시에 일어나도 안전한지 검증합니다. -race로 실행했을 때
// 경쟁이 잡히지 않아야 합니다.
func TestSession_ConcurrentReadersAndWriters(t *testing.T) {
	store := newMemStore()
	m := NewSessionManager(store, time.Hour)

	var wg sync.WaitGroup
	done := make(chan struct{})

	// 수신 루프 역할: session_state 반영과 상관 ID 갱신
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			m.OnSessionState(&protocol.SessionState{SessionID: "sess-1", IsNew: i == 0})
			m.UpdateLastCorrelationID(fmt.Sprintf("corr-%d", i))
		}
	}()

	// 상태 콜백/폴링 역할: 동시 조회
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if sess := m.Current(); sess != nil && sess.SessionID != "sess-1" {
					t.Errorf("Current().SessionID = %q, want sess-1", sess.SessionID)
					return
				}
				_, _ = m.ResumePayload()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}

// TestSession_ResumeMessage는 재개 메시지의 와이어 형식을 검증합니다.
func TestSession_ResumeMessage(t *testing.T) {
	store := newMemStore()
	storeSession(t, store, Session{
		SessionID:         "sess-1",
		LastCorrelationID: "corr-5",
		CreatedAt:         time.Now().UnixMilli(),
	})

	m := NewSessionManager(store, time.Hour)
	msg := m.ResumeMessage()

	var resume protocol.ResumeSession
	if err := json.Unmarshal(msg.Raw, &resume); err != nil {
		t.Fatalf("재개 메시지 해석 실패: %v", err)
	}
	if resume.Type != protocol.TypeResumeSession {
		t.Errorf("type = %q, want %q", resume.Type, protocol.TypeResumeSession)
	}
	if resume.SessionID != "sess-1" || resume.LastCorrelationID != "corr-5" {
		t.Errorf("재개 메시지 = %+v, want sess-1/corr-5", resume)
	}
}
