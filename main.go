// Package main은 Editor Bridge CLI의 진입점입니다.
// 로컬 에이전트 백엔드와 WebSocket으로 통신하는 세션 재개형 채널을 제공합니다.
package main

import (
	"os"

	"github.com/insajin/editor-bridge/cmd"
)

// 빌드 시 ldflags로 주입되는 버전 정보
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// 버전 정보를 root 패키지에 설정
	cmd.SetVersionInfo(version, commit, buildDate)

	// CLI 실행
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
