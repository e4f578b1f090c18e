// Package cmd는 Editor Bridge CLI의 명령어를 정의합니다.
// connect.go는 서버 연결 명령을 구현합니다.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/insajin/editor-bridge/internal/client"
	"github.com/insajin/editor-bridge/internal/config"
	"github.com/insajin/editor-bridge/internal/logger"
	"github.com/insajin/editor-bridge/internal/protocol"
	"github.com/insajin/editor-bridge/internal/storage"
)

var (
	// connect 명령 플래그
	serverURL    string
	showMetrics  bool
	freshSession bool
)

// connectCmd는 에이전트 백엔드에 연결하는 명령어입니다.
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "에이전트 백엔드에 연결합니다",
	Long: `WebSocket을 통해 에이전트 백엔드에 연결하고 대화형 세션을 시작합니다.

이전 세션이 1시간 이내에 생성되었다면 자동으로 재개되어 진행 중이던
에이전트 실행을 이어받습니다. 연결이 끊어지면 지수 백오프로 자동 재연결합니다.

입력 명령:
  /stop         현재 에이전트 실행을 중단합니다
  /open <path>  워크스페이스 파일을 읽습니다
  /quit         연결을 종료하고 빠져나갑니다
  그 외 입력은 채팅 메시지로 전송됩니다

SIGINT(Ctrl+C) 또는 SIGTERM 시그널을 수신하면 정상적으로 연결을 종료합니다.`,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVar(&serverURL, "server", "",
		"서버 URL (기본값: 설정 파일 또는 ws://127.0.0.1:8765/ws)")
	connectCmd.Flags().BoolVar(&showMetrics, "metrics", false,
		"종료 시 운영 지표를 출력합니다")
	connectCmd.Flags().BoolVar(&freshSession, "fresh", false,
		"저장된 세션을 무시하고 새 세션으로 시작합니다")
}

// runConnect는 connect 명령의 실행 로직입니다.
func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("설정 로드 실패: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("설정 검증 실패: %w", err)
	}

	// 서버 URL 결정 (플래그 > 환경변수/설정파일)
	srvURL := serverURL
	if srvURL == "" {
		srvURL = cfg.Server.URL
	}

	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}

	c := client.NewClient(srvURL, store,
		client.WithHeartbeatInterval(cfg.HeartbeatInterval()),
		client.WithQueueSize(cfg.Queue.MaxSize),
		client.WithConnectTimeout(cfg.ConnectTimeout()),
		client.WithReconnectPolicy(
			cfg.InitialReconnectDelay(),
			cfg.MaxReconnectDelay(),
			cfg.Reconnection.MaxAttempts,
		),
		client.WithSessionExpiry(cfg.SessionExpiry()),
	)

	if freshSession {
		c.ClearSession()
	}

	c.OnStatusChange(func(connected bool) {
		if connected {
			sess := c.Session()
			if sess != nil && sess.SessionID != "" {
				fmt.Printf("* 연결됨 (세션: %s)\n", sess.SessionID)
			} else {
				fmt.Println("* 연결됨")
			}
		} else {
			fmt.Println("* 연결이 끊어졌습니다")
		}
	})

	c.OnLog(func(message string) {
		fmt.Printf("* %s\n", message)
	})

	c.OnMessage(printServerMessage)

	// 컨텍스트 생성 (graceful shutdown용)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT/SIGTERM 시그널 핸들링
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().Str("server", srvURL).Msg("서버에 연결 중...")
	if err := c.Connect(ctx); err != nil {
		// 첫 다이얼 실패 후에도 백오프 재연결이 진행됩니다.
		fmt.Printf("* 첫 연결 실패, 재연결을 시도합니다: %v\n", err)
	}

	// 표준 입력 루프
	inputCh := make(chan string)
	go readInput(inputCh)

	for {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("종료 시그널 수신")
			return shutdown(c)

		case line, ok := <-inputCh:
			if !ok {
				// 표준 입력이 닫혔습니다 (EOF).
				return shutdown(c)
			}
			if done := handleInput(c, line); done {
				return shutdown(c)
			}
		}
	}
}

// handleInput은 한 줄의 사용자 입력을 처리합니다.
// /quit이 입력되면 true를 반환합니다.
func handleInput(c *client.Client, line string) (done bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch {
	case line == "/quit":
		return true

	case line == "/stop":
		cid := c.SendStop()
		logger.Debug().Str("correlation_id", cid).Msg("중단 요청 전송")

	case strings.HasPrefix(line, "/open "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
		if path == "" {
			fmt.Println("* 사용법: /open <path>")
			return false
		}
		cid := c.SendOpenFile(path)
		logger.Debug().Str("correlation_id", cid).Str("path", path).Msg("파일 열기 요청 전송")

	default:
		cid := c.SendChat(line)
		logger.Debug().Str("correlation_id", cid).Msg("채팅 메시지 전송")
	}
	return false
}

// printServerMessage는 서버 메시지를 사용자에게 출력합니다.
func printServerMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeStep:
		st, err := msg.Step()
		if err != nil {
			logger.Warn().Err(err).Msg("step 메시지 해석 실패")
			return
		}
		if st.ToolName != "" {
			fmt.Printf("[%d:%s] %s (%s)\n", st.StepNumber, st.Phase, st.Content, st.ToolName)
		} else {
			fmt.Printf("[%d:%s] %s\n", st.StepNumber, st.Phase, st.Content)
		}

	case protocol.TypeComplete:
		st, err := msg.Step()
		if err == nil && st.Content != "" {
			fmt.Printf("\n%s\n", st.Content)
		}
		fmt.Println("* 에이전트 실행 완료")

	case protocol.TypeError:
		st, err := msg.Step()
		if err == nil && st.Content != "" {
			fmt.Printf("* 오류: %s\n", st.Content)
		} else {
			fmt.Println("* 에이전트 오류가 발생했습니다")
		}

	case protocol.TypeStopped:
		fmt.Println("* 에이전트 실행이 중단되었습니다")

	case protocol.TypeFileContent:
		fc, err := msg.FileContent()
		if err != nil {
			logger.Warn().Err(err).Msg("file_content 메시지 해석 실패")
			return
		}
		fmt.Printf("--- %s (%d줄, %d바이트)\n%s\n---\n", fc.Path, fc.Lines, fc.Size, fc.Content)

	default:
		logger.Debug().Str("type", msg.Type).Msg("처리되지 않은 메시지 타입")
	}
}

// readInput은 표준 입력을 한 줄씩 읽어 채널로 전달합니다.
func readInput(ch chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		ch <- scanner.Text()
	}
	close(ch)
}

// shutdown은 연결을 정상 종료하고 필요 시 지표를 출력합니다.
func shutdown(c *client.Client) error {
	logger.Info().Msg("정상 종료 시작")
	c.Disconnect()

	if queued := c.QueueLen(); queued > 0 {
		fmt.Printf("* 전송되지 못한 메시지 %d건이 남아 있습니다\n", queued)
	}

	if showMetrics {
		data, err := c.Metrics().ToJSON()
		if err != nil {
			logger.Warn().Err(err).Msg("지표 직렬화 실패")
		} else {
			fmt.Println(string(data))
		}
	}

	logger.Info().Msg("정상 종료 완료")
	return nil
}

// openSessionStore는 설정에 따라 세션 스토리지를 엽니다.
func openSessionStore(cfg *config.Config) (*storage.FileStore, error) {
	dir := cfg.Session.Dir
	if dir == "" {
		d, err := storage.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("세션 저장 경로 결정 실패: %w", err)
		}
		dir = d
	}
	return storage.NewFileStore(dir), nil
}
