// Package config는 Editor Bridge의 설정 관리를 담당합니다.
// 설정 우선순위: 환경변수 > 설정파일 > 기본값
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config는 전체 애플리케이션 설정을 나타냅니다.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Heartbeat    HeartbeatConfig    `mapstructure:"heartbeat"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Reconnection ReconnectionConfig `mapstructure:"reconnection"`
	Session      SessionConfig      `mapstructure:"session"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig는 에이전트 백엔드 연결 설정입니다.
type ServerConfig struct {
	// URL은 WebSocket 서버 주소입니다.
	URL string `mapstructure:"url"`
	// TimeoutSeconds는 연결 타임아웃(초)입니다.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeartbeatConfig는 하트비트 설정입니다.
type HeartbeatConfig struct {
	// IntervalSeconds는 ping 전송 간격(초)입니다.
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// QueueConfig는 송신 대기열 설정입니다.
type QueueConfig struct {
	// MaxSize는 대기열 최대 크기입니다. 초과 시 가장 오래된 메시지가 버려집니다.
	MaxSize int `mapstructure:"max_size"`
}

// ReconnectionConfig는 재연결 설정입니다.
type ReconnectionConfig struct {
	// MaxAttempts는 최대 재연결 시도 횟수입니다.
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialDelayMs는 초기 재연결 지연 시간(밀리초)입니다.
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
	// MaxDelayMs는 최대 재연결 지연 시간(밀리초)입니다.
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// SessionConfig는 세션 영속화 설정입니다.
type SessionConfig struct {
	// Dir은 세션 레코드 저장 디렉토리입니다. 비어 있으면 기본 설정 경로를 사용합니다.
	Dir string `mapstructure:"dir"`
	// ExpiryMinutes는 세션 만료 시간(분)입니다. 만료된 세션은 재개되지 않습니다.
	ExpiryMinutes int `mapstructure:"expiry_minutes"`
}

// LoggingConfig는 로깅 설정입니다.
type LoggingConfig struct {
	// Level은 로그 레벨입니다 (debug, info, warn, error).
	Level string `mapstructure:"level"`
	// Format은 로그 포맷입니다 (json, text).
	Format string `mapstructure:"format"`
	// File은 로그 파일 경로입니다. 비어있으면 stdout으로 출력합니다.
	File string `mapstructure:"file"`
}

// SetDefaults는 기본 설정값을 viper에 등록합니다.
func SetDefaults() {
	// 서버 설정
	viper.SetDefault("server.url", "ws://127.0.0.1:8765/ws")
	viper.SetDefault("server.timeout_seconds", 30)

	// 하트비트 설정
	viper.SetDefault("heartbeat.interval_seconds", 30)

	// 송신 대기열 설정
	viper.SetDefault("queue.max_size", 50)

	// 재연결 설정
	viper.SetDefault("reconnection.max_attempts", 5)
	viper.SetDefault("reconnection.initial_delay_ms", 1000)
	viper.SetDefault("reconnection.max_delay_ms", 5000)

	// 세션 설정
	viper.SetDefault("session.dir", "")
	viper.SetDefault("session.expiry_minutes", 60)

	// 로깅 설정
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file", "")
}

// Load는 설정을 로드하고 Config 구조체를 반환합니다.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("설정 파싱 실패: %w", err)
	}

	// 홈 디렉토리 경로 확장
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Session.Dir = expandPath(cfg.Session.Dir)

	return &cfg, nil
}

// Validate는 설정값의 유효성을 검증합니다.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url이 비어 있습니다")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server.url은 ws:// 또는 wss:// 로 시작해야 합니다: %s", c.Server.URL)
	}
	if c.Heartbeat.IntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat.interval_seconds는 양수여야 합니다: %d", c.Heartbeat.IntervalSeconds)
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue.max_size는 양수여야 합니다: %d", c.Queue.MaxSize)
	}
	if c.Reconnection.MaxAttempts <= 0 {
		return fmt.Errorf("reconnection.max_attempts는 양수여야 합니다: %d", c.Reconnection.MaxAttempts)
	}
	if c.Reconnection.InitialDelayMs <= 0 {
		return fmt.Errorf("reconnection.initial_delay_ms는 양수여야 합니다: %d", c.Reconnection.InitialDelayMs)
	}
	if c.Reconnection.MaxDelayMs < c.Reconnection.InitialDelayMs {
		return fmt.Errorf("reconnection.max_delay_ms는 initial_delay_ms 이상이어야 합니다")
	}
	if c.Session.ExpiryMinutes <= 0 {
		return fmt.Errorf("session.expiry_minutes는 양수여야 합니다: %d", c.Session.ExpiryMinutes)
	}
	return nil
}

// HeartbeatInterval은 하트비트 간격을 time.Duration으로 반환합니다.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.IntervalSeconds) * time.Second
}

// ConnectTimeout은 연결 타임아웃을 time.Duration으로 반환합니다.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// InitialReconnectDelay는 초기 재연결 지연을 time.Duration으로 반환합니다.
func (c *Config) InitialReconnectDelay() time.Duration {
	return time.Duration(c.Reconnection.InitialDelayMs) * time.Millisecond
}

// MaxReconnectDelay는 최대 재연결 지연을 time.Duration으로 반환합니다.
func (c *Config) MaxReconnectDelay() time.Duration {
	return time.Duration(c.Reconnection.MaxDelayMs) * time.Millisecond
}

// SessionExpiry는 세션 만료 시간을 time.Duration으로 반환합니다.
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.Session.ExpiryMinutes) * time.Minute
}

// expandPath는 경로의 ~ 를 홈 디렉토리로 확장합니다.
func expandPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
