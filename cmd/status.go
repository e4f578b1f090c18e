// Package cmd는 Editor Bridge CLI의 명령어를 정의합니다.
// status.go는 저장된 세션과 설정 상태 확인 명령을 구현합니다.
package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/insajin/editor-bridge/internal/client"
	"github.com/insajin/editor-bridge/internal/config"
)

// StatusInfo는 상태 정보를 담는 구조체입니다.
type StatusInfo struct {
	// ServerURL은 설정된 서버 URL입니다.
	ServerURL string `json:"server_url"`
	// HasSession은 저장된 세션 존재 여부입니다.
	HasSession bool `json:"has_session"`
	// SessionID는 저장된 세션 ID입니다.
	SessionID string `json:"session_id,omitempty"`
	// LastCorrelationID는 마지막으로 수신한 상관 ID입니다.
	LastCorrelationID string `json:"last_correlation_id,omitempty"`
	// CreatedAt은 세션 생성 시각입니다.
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// Expired는 세션 만료 여부입니다. 만료된 세션은 재개되지 않습니다.
	Expired bool `json:"expired"`
	// SessionDir은 세션 레코드가 저장된 디렉토리입니다.
	SessionDir string `json:"session_dir,omitempty"`
}

var statusJSON bool

// statusCmd는 저장된 세션과 설정 상태를 확인하는 명령어입니다.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "저장된 세션과 설정 상태를 확인합니다",
	Long: `Editor Bridge의 저장된 세션 정보와 설정을 표시합니다.

표시 항목:
  - 설정된 서버 URL
  - 저장된 세션 ID와 생성 시각
  - 세션 만료 여부 (만료된 세션은 다음 연결 시 재개되지 않습니다)
  - 마지막으로 수신한 메시지의 상관 ID`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "JSON 형식으로 출력")
}

// runStatus는 status 명령의 실행 로직입니다.
func runStatus(cmd *cobra.Command, args []string) error {
	status, err := collectStatus()
	if err != nil {
		return fmt.Errorf("상태 수집 실패: %w", err)
	}

	if statusJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("JSON 직렬화 실패: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printStatus(status)
	return nil
}

// collectStatus는 현재 상태 정보를 수집합니다.
func collectStatus() (*StatusInfo, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("설정 로드 실패: %w", err)
	}

	status := &StatusInfo{ServerURL: cfg.Server.URL}

	store, err := openSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	status.SessionDir = store.Dir()

	sess, ok, err := client.ReadSession(store)
	if err != nil {
		// 손상된 레코드는 세션 없음으로 표시합니다.
		return status, nil
	}
	if !ok {
		return status, nil
	}

	created := sess.CreatedTime()
	status.HasSession = true
	status.SessionID = sess.SessionID
	status.LastCorrelationID = sess.LastCorrelationID
	status.CreatedAt = &created
	status.Expired = sess.Expired(time.Now(), cfg.SessionExpiry())

	return status, nil
}

// printStatus는 상태 정보를 사람이 읽기 쉬운 형식으로 출력합니다.
func printStatus(status *StatusInfo) {
	fmt.Println("Editor Bridge 상태")
	fmt.Println("==================")
	fmt.Println()

	fmt.Printf("서버:        %s\n", status.ServerURL)
	fmt.Println()

	fmt.Println("세션 정보")
	fmt.Println("---------")
	if !status.HasSession {
		fmt.Println("저장된 세션: 없음 (다음 연결은 새 세션으로 시작)")
		return
	}

	fmt.Printf("세션 ID:     %s\n", status.SessionID)
	if status.CreatedAt != nil {
		fmt.Printf("생성 시각:   %s\n", status.CreatedAt.Format(time.RFC3339))
	}
	if status.LastCorrelationID != "" {
		fmt.Printf("마지막 상관 ID: %s\n", status.LastCorrelationID)
	}
	if status.Expired {
		fmt.Println("만료 여부:   만료됨 (다음 연결은 새 세션으로 시작)")
	} else {
		fmt.Println("만료 여부:   유효함 (다음 연결 시 재개)")
	}
}
