package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Realtime
	PushTimeout      time.Duration // 1セッションへのプッシュ書き込みの上限時間
	SendBufferSize   int           // セッションごとの送信バッファ（メッセージ数）
	PingInterval     time.Duration // WebSocketのping送信間隔
	MaxMessageSize   int64         // クライアントから受信するメッセージの上限バイト数
	AnnounceDeadline time.Duration // 接続後にannounceが届くまでの猶予

	// Connection
	ConnectCooldown time.Duration // 拒否/取り下げ後に再リクエスト可能になるまでの期間（0=即時）

	// Notification
	NotificationRetentionDays int // 既読通知の保持日数
	NotificationPageSize      int // 通知一覧の1ページ件数

	// Rate Limit
	RateLimitGeneral int // API全般（req/min/user）
	RateLimitConnect int // つながりリクエスト送信（req/min/user）

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PushTimeout = getEnvDuration("PUSH_TIMEOUT", 5*time.Second)
	cfg.SendBufferSize = getEnvInt("SEND_BUFFER_SIZE", 32)
	cfg.PingInterval = getEnvDuration("PING_INTERVAL", 30*time.Second)
	cfg.MaxMessageSize = getEnvInt64("MAX_MESSAGE_SIZE", 4096)
	cfg.AnnounceDeadline = getEnvDuration("ANNOUNCE_DEADLINE", 30*time.Second)
	cfg.ConnectCooldown = getEnvDuration("CONNECT_COOLDOWN", 0)
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 90)
	cfg.NotificationPageSize = getEnvInt("NOTIFICATION_PAGE_SIZE", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitConnect = getEnvInt("RATE_LIMIT_CONNECT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
