// Package cmd는 Editor Bridge CLI의 명령어를 정의합니다.
// session.go는 저장된 세션 관리 명령을 구현합니다.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/insajin/editor-bridge/internal/client"
	"github.com/insajin/editor-bridge/internal/config"
	"github.com/insajin/editor-bridge/internal/storage"
)

// sessionCmd는 세션 관리 명령어 그룹입니다.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "저장된 세션을 관리합니다",
}

// sessionClearCmd는 저장된 세션을 제거하는 명령어입니다.
var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "저장된 세션을 제거합니다",
	Long: `저장된 세션 레코드를 제거합니다.

다음 connect는 이전 세션을 재개하지 않고 새 세션으로 시작됩니다.`,
	RunE: runSessionClear,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}

// runSessionClear는 session clear 명령의 실행 로직입니다.
func runSessionClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("설정 로드 실패: %w", err)
	}

	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}

	sess, ok, _ := client.ReadSession(store)
	if !ok {
		fmt.Println("저장된 세션이 없습니다")
		return nil
	}

	if err := clearStoredSession(store); err != nil {
		return fmt.Errorf("세션 제거 실패: %w", err)
	}

	fmt.Printf("세션을 제거했습니다: %s\n", sess.SessionID)
	return nil
}

// clearStoredSession은 저장된 세션 레코드를 제거합니다.
func clearStoredSession(store storage.Store) error {
	return store.Remove(client.SessionStorageKey)
}
