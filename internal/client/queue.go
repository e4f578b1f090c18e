// Package client는 Editor Bridge의 세션 재개형 실시간 프로토콜 계층을 구현합니다.
// queue.go는 전송되지 못한 메시지를 보관하는 유한 FIFO 송신 대기열을 구현합니다.
package client

import (
	"sync"

	"github.com/insajin/editor-bridge/internal/protocol"
)

// DefaultMaxQueueSize는 송신 대기열의 기본 최대 크기입니다.
const DefaultMaxQueueSize = 50

// OutboundQueue는 아직 전송되지 못한 메시지를 enqueue 순서대로 보관합니다.
// 대기열이 가득 차면 가장 오래된 메시지를 버립니다 (최신 메시지가 항상 자리를 얻음).
// Drain 중 전송에 실패한 메시지는 대기열 앞쪽으로 되돌아가므로
// 메시지 간 상대 순서는 어떤 경로에서도 바뀌지 않습니다.
type OutboundQueue struct {
	// mu는 대기열 상태 접근을 보호하는 뮤텍스입니다.
	mu sync.Mutex
	// entries는 enqueue 순서의 메시지 목록입니다 (앞쪽이 가장 오래됨).
	entries []protocol.Message
	// maxSize는 대기열 최대 크기입니다.
	maxSize int

	// 통계 카운터
	enqueued int64
	drained  int64
	dropped  int64
}

// NewOutboundQueue는 새로운 송신 대기열을 생성합니다.
// maxSize가 0 이하이면 DefaultMaxQueueSize를 사용합니다.
func NewOutboundQueue(maxSize int) *OutboundQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxQueueSize
	}
	return &OutboundQueue{
		entries: make([]protocol.Message, 0, maxSize),
		maxSize: maxSize,
	}
}

// Enqueue는 메시지를 대기열 뒤에 추가합니다.
// 대기열이 가득 차 있으면 가장 오래된 메시지를 버리고 true를 반환합니다.
// 호출자는 true를 받으면 사용자에게 유실 사실을 알려야 합니다.
func (q *OutboundQueue) Enqueue(msg protocol.Message) (droppedOldest bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		// FIFO 축출: 가장 오래된 항목을 버립니다.
		q.entries = q.entries[1:]
		q.dropped++
		droppedOldest = true
	}

	q.entries = append(q.entries, msg)
	q.enqueued++
	return droppedOldest
}

// Drain은 대기열이 빌 때까지 앞쪽부터 send로 전송합니다.
// send가 실패하면 해당 메시지를 대기열 앞쪽에 되돌려 놓고 즉시 중단하여
// 이후 메시지들의 FIFO 순서를 보존합니다.
// 전송에 성공한 메시지 수와 중단 원인 오류를 반환합니다.
func (q *OutboundQueue) Drain(send func(protocol.Message) error) (sent int, err error) {
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return sent, nil
		}
		front := q.entries[0]
		q.entries = q.entries[1:]
		q.mu.Unlock()

		if sendErr := send(front); sendErr != nil {
			// 실패한 메시지는 앞쪽으로 되돌립니다 (뒤가 아님).
			q.mu.Lock()
			q.entries = append([]protocol.Message{front}, q.entries...)
			q.mu.Unlock()
			return sent, sendErr
		}

		q.mu.Lock()
		q.drained++
		q.mu.Unlock()
		sent++
	}
}

// Len은 현재 대기 중인 메시지 수를 반환합니다.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Stats는 누적 enqueue/전송/유실 수를 반환합니다.
func (q *OutboundQueue) Stats() (enqueued, drained, dropped int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued, q.drained, q.dropped
}
