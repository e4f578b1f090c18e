// Package client는 Editor Bridge의 세션 재개형 실시간 프로토콜 계층을 구현합니다.
// session.go는 세션 정체성의 영속화와 재개 핸드셰이크를 담당합니다.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/insajin/editor-bridge/internal/logger"
	"github.com/insajin/editor-bridge/internal/protocol"
	"github.com/insajin/editor-bridge/internal/storage"
)

// SessionStorageKey는 세션 레코드를 저장하는 고정 키입니다.
const SessionStorageKey = "agent_session"

// DefaultSessionExpiry는 세션 만료 시간 기본값입니다.
// 만료된 세션은 폐기되며 절대 재개되지 않습니다.
const DefaultSessionExpiry = time.Hour

// Session은 서버가 부여한 세션 정체성과 재개 지점을 나타냅니다.
// CreatedAt은 epoch 밀리초입니다.
type Session struct {
	SessionID         string `json:"sessionId"`
	LastCorrelationID string `json:"lastCorrelationId,omitempty"`
	CreatedAt         int64  `json:"createdAt"`
}

// CreatedTime은 세션 생성 시각을 time.Time으로 반환합니다.
func (s *Session) CreatedTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// Expired는 세션이 만료되었는지 확인합니다.
func (s *Session) Expired(now time.Time, expiry time.Duration) bool {
	return now.Sub(s.CreatedTime()) >= expiry
}

// ReadSession은 스토리지에서 세션 레코드를 읽습니다.
// 레코드가 없으면 ok=false를 반환합니다. 만료 여부는 판정하지 않습니다.
func ReadSession(store storage.Store) (sess *Session, ok bool, err error) {
	value, found, err := store.Get(SessionStorageKey)
	if err != nil || !found {
		return nil, false, err
	}

	var s Session
	if unmarshalErr := json.Unmarshal([]byte(value), &s); unmarshalErr != nil {
		return nil, false, unmarshalErr
	}
	return &s, true, nil
}

// SessionManager는 세션 레코드의 유일한 소유자입니다.
// 프로세스 재시작을 넘어 세션 ID와 마지막 수신 상관 ID를 보존하고,
// 연결 성공 시 재개 핸드셰이크 값을 제공합니다.
//
// 스토리지 실패는 어떤 경로에서도 전파되지 않습니다. 기록하고 로깅한 뒤
// 세션이 없는 것처럼 동작합니다 (새 세션으로 재시작).
type SessionManager struct {
	// store는 세션 레코드 영속화 스토리지입니다.
	store storage.Store
	// expiry는 세션 만료 시간입니다.
	expiry time.Duration

	// mu는 current 접근을 보호하는 뮤텍스입니다. 갱신은 수신 루프에서,
	// 조회는 임의의 고루틴에서 일어날 수 있습니다.
	mu sync.Mutex
	// current는 현재 세션입니다. nil이면 세션이 없습니다.
	current *Session

	// nowFn은 현재 시각 조회 함수입니다. 테스트에서 주입 가능하도록 필드로 둡니다.
	nowFn func() time.Time
}

// NewSessionManager는 새로운 SessionManager를 생성하고 저장된 세션을 로드합니다.
// 만료되었거나 손상된 레코드는 폐기하고 스토리지에서 제거합니다.
// expiry가 0 이하이면 DefaultSessionExpiry를 사용합니다.
func NewSessionManager(store storage.Store, expiry time.Duration) *SessionManager {
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}

	m := &SessionManager{
		store:  store,
		expiry: expiry,
		nowFn:  time.Now,
	}
	m.loadSession()
	return m
}

// loadSession은 저장된 세션 레코드를 읽어 current를 초기화합니다.
func (m *SessionManager) loadSession() {
	sess, ok, err := ReadSession(m.store)
	if err != nil {
		// 읽기 실패는 세션 없음으로 처리합니다.
		logger.Warn().Err(err).Msg("세션 레코드 로드 실패, 새 세션으로 시작합니다")
		m.removeStored()
		return
	}
	if !ok {
		return
	}

	if sess.Expired(m.nowFn(), m.expiry) {
		logger.Info().
			Str("session_id", sess.SessionID).
			Time("created_at", sess.CreatedTime()).
			Msg("만료된 세션을 폐기합니다")
		m.removeStored()
		return
	}

	m.current = sess
	logger.Info().
		Str("session_id", sess.SessionID).
		Str("last_correlation_id", sess.LastCorrelationID).
		Msg("저장된 세션 로드 완료")
}

// ResumePayload는 재개 핸드셰이크에 사용할 세션 ID와 마지막 상관 ID를 반환합니다.
// 유효한 세션이 없으면 빈 세션 ID를 반환합니다. 호출 시점에 만료된 세션은
// 이 자리에서 폐기되어 절대 핸드셰이크에 실리지 않습니다.
func (m *SessionManager) ResumePayload() (sessionID, lastCorrelationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return "", ""
	}

	if m.current.Expired(m.nowFn(), m.expiry) {
		logger.Info().
			Str("session_id", m.current.SessionID).
			Msg("만료된 세션을 폐기하고 빈 ID로 재개를 요청합니다")
		m.current = nil
		m.removeStored()
		return "", ""
	}

	return m.current.SessionID, m.current.LastCorrelationID
}

// ResumeMessage는 현재 세션 상태로 resume_session 메시지를 생성합니다.
func (m *SessionManager) ResumeMessage() protocol.Message {
	sessionID, lastCorrelationID := m.ResumePayload()
	return protocol.NewResumeSession(sessionID, lastCorrelationID)
}

// OnSessionState는 서버의 session_state 응답을 반영합니다.
//
// is_new가 참이면 서버가 세션을 재개하지 않았다는 뜻이므로 기존 세션을
// 무조건 덮어쓰고 새 세션을 생성합니다. 거짓이면 로컬 세션 ID를 서버 값으로
// 맞추어 저장합니다. pending_messages는 서버가 같은 채널로 재전송할 것이므로
// 정보성으로만 기록합니다.
func (m *SessionManager) OnSessionState(st *protocol.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()

	if st.IsNew {
		m.current = &Session{
			SessionID: st.SessionID,
			CreatedAt: now.UnixMilli(),
		}
		logger.Info().
			Str("session_id", st.SessionID).
			Msg("서버가 새 세션을 발급했습니다")
	} else {
		if m.current == nil {
			m.current = &Session{
				CreatedAt:         now.UnixMilli(),
				LastCorrelationID: st.LastCorrelationID,
			}
		}
		m.current.SessionID = st.SessionID
		logger.Info().
			Str("session_id", st.SessionID).
			Bool("agent_running", st.AgentRunning).
			Int("pending_messages", st.PendingMessages).
			Msg("세션 재개 완료")
	}

	m.persist()
}

// UpdateLastCorrelationID는 마지막으로 수신한 상관 ID를 갱신하고 즉시 저장합니다.
// 메시지마다 저장하므로 프로세스가 도중에 종료되어도 재개 지점이 후퇴하지 않습니다.
func (m *SessionManager) UpdateLastCorrelationID(correlationID string) {
	if correlationID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		// 세션 발급 전에도 재개 지점은 추적합니다.
		m.current = &Session{CreatedAt: m.nowFn().UnixMilli()}
	}
	m.current.LastCorrelationID = correlationID
	m.persist()
}

// Current는 현재 세션의 복사본을 반환합니다. 세션이 없으면 nil입니다.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	copied := *m.current
	return &copied
}

// Clear는 현재 세션과 저장된 레코드를 제거합니다.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	m.removeStored()
}

// persist는 현재 세션을 스토리지에 저장합니다. 호출자가 mu를 잡고 있어야
// 합니다. 실패는 로깅만 합니다.
func (m *SessionManager) persist() {
	if m.current == nil {
		return
	}

	data, err := json.Marshal(m.current)
	if err != nil {
		logger.Warn().Err(err).Msg("세션 레코드 직렬화 실패")
		return
	}

	if err := m.store.Set(SessionStorageKey, string(data)); err != nil {
		logger.Warn().Err(err).Msg("세션 레코드 저장 실패")
	}
}

// removeStored는 저장된 세션 레코드를 제거합니다. 실패는 로깅만 합니다.
func (m *SessionManager) removeStored() {
	if err := m.store.Remove(SessionStorageKey); err != nil {
		logger.Warn().Err(err).Msg("세션 레코드 제거 실패")
	}
}
