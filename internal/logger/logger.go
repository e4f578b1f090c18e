// Package logger는 구조화된 로깅을 제공합니다.
// 기본적으로 JSON 포맷으로 출력하며, 개발 시 text 포맷을 선택할 수 있습니다.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/insajin/editor-bridge/internal/config"
)

// Setup은 로거를 초기화합니다.
func Setup(cfg config.LoggingConfig) {
	// 로그 레벨 설정
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	// 타임스탬프 포맷 설정 (RFC3339)
	zerolog.TimeFieldFormat = time.RFC3339

	// 출력 대상 설정
	var output io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			// 파일 열기 실패 시 stdout 사용
			log.Warn().Err(err).Str("file", cfg.File).Msg("로그 파일을 열 수 없어 stdout을 사용합니다")
		} else {
			output = file
		}
	}

	// 포맷 설정
	if cfg.Format == "text" {
		// 콘솔 포맷 (개발 시 가독성)
		consoleWriter := zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
		log.Logger = zerolog.New(consoleWriter).With().Timestamp().Caller().Logger()
	} else {
		// JSON 포맷 (기본값)
		log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	}
}

// parseLevel은 문자열 레벨을 zerolog.Level로 변환합니다.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug는 디버그 레벨 로그를 기록합니다.
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info는 정보 레벨 로그를 기록합니다.
func Info() *zerolog.Event {
	return log.Info()
}

// Warn은 경고 레벨 로그를 기록합니다.
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error는 오류 레벨 로그를 기록합니다.
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal은 치명적 오류 레벨 로그를 기록하고 프로그램을 종료합니다.
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// WithCorrelationID는 상관 ID를 컨텍스트에 추가한 로거를 반환합니다.
func WithCorrelationID(correlationID string) zerolog.Logger {
	return log.With().Str("correlation_id", correlationID).Logger()
}

// WithSessionID는 세션 ID를 컨텍스트에 추가한 로거를 반환합니다.
func WithSessionID(sessionID string) zerolog.Logger {
	return log.With().Str("session_id", sessionID).Logger()
}
