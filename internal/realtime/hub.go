// Package realtime はWebSocketによるライブ通知配信のトランスポート層を提供する。
//
// セッションのライフサイクルは「接続→アナウンス→配信→切断」の一方向で、
// アナウンスで検証済みトークンからユーザーを解決するまでプレゼンスには
// 現れない。切断（正常・異常を問わず）は読み取りポンプの終了経由で
// ちょうど1回のプレゼンス解除を引き起こす。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/netwise/internal/metrics"
	"github.com/hitoshi/netwise/internal/notify"
	"github.com/hitoshi/netwise/internal/presence"
)

// TokenResolver はアナウンスされたトークンをユーザーIDに解決する。
// authパッケージのServiceが実装する。
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}

// HubConfig はハブの動作設定。
type HubConfig struct {
	// PushTimeout は1メッセージの書き込みデッドライン。
	PushTimeout time.Duration
	// SendBufferSize はセッションごとの送信バッファ長。
	SendBufferSize int
	// PingInterval はpingの送信間隔。読み取りデッドラインはこの2倍。
	PingInterval time.Duration
	// MaxMessageSize はクライアントから受け付ける最大メッセージ長。
	MaxMessageSize int64
	// AnnounceDeadline は接続からアナウンス受信までの猶予。
	AnnounceDeadline time.Duration
	// AllowedOrigin はCheckOriginで許可するオリジン。空なら全許可（テスト用）。
	AllowedOrigin string
}

// Hub は全ライブセッションを管理し、通知のプッシュ先を提供する。
// notify.Pusherを実装する。
type Hub struct {
	config   HubConfig
	resolver TokenResolver
	presence *presence.Registry
	metrics  metrics.MetricsCollector
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

var _ notify.Pusher = (*Hub)(nil)

// NewHub はHubを生成する。
func NewHub(
	config HubConfig,
	resolver TokenResolver,
	registry *presence.Registry,
	collector metrics.MetricsCollector,
) *Hub {
	h := &Hub{
		config:   config,
		resolver: resolver,
		presence: registry,
		metrics:  collector,
		sessions: make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if config.AllowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == config.AllowedOrigin
		},
	}
	return h
}

// ServeHTTP はHTTP接続をWebSocketにアップグレードし、セッションを開始する。
// GET /ws にマウントされる。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeはエラー応答を書き込み済み
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.config.SendBufferSize),
	}

	h.addSession(s)

	go s.writePump()
	s.readPump()
}

// Push はセッションの送信バッファにメッセージを積む。notify.Pusherの実装。
// セッションが存在しない、またはバッファが溢れている場合はエラーを返す。
// 実際の書き込みはセッションのwritePumpが書き込みデッドライン付きで行う。
func (h *Hub) Push(sessionID string, msg notify.PushMessage) error {
	payload, err := json.Marshal(serverMessage{
		Type:         messageTypeNotification,
		Notification: &msg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	// sendチャネルのcloseはロック保持中にしか起きないので、
	// RLockを持ったまま送ることでclose済みチャネルへの送信を防ぐ。
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	select {
	case s.send <- payload:
		return nil
	default:
		// バッファ満杯のセッションは遅延クライアント。リトライせず諦める。
		return fmt.Errorf("send buffer full for session %s", sessionID)
	}
}

// SessionCount は現在のセッション数を返す。
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown は全セッションの接続を閉じる。
// 各セッションの後片付けは読み取りポンプの終了経路に任せる。
func (h *Hub) Shutdown() {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		_ = s.conn.Close()
	}
}

// addSession はセッションを登録しゲージを更新する。
func (h *Hub) addSession(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.updateGauges()
}

// removeSession はセッションを登録解除し、プレゼンスからも外す。
// readPumpの終了経路からちょうど1回呼ばれる。
// sendチャネルのcloseをロック内で行い、進行中のPushと衝突しないようにする。
func (h *Hub) removeSession(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	s.close()
	h.mu.Unlock()

	if userID, ok := h.presence.Deregister(s.id); ok {
		slog.Info("session closed",
			slog.String("session_id", s.id),
			slog.String("user_id", userID),
		)
	}

	h.updateGauges()
}

func (h *Hub) updateGauges() {
	h.metrics.SetOnlineUsers(h.presence.OnlineUsers())
	h.metrics.SetOpenSessions(h.presence.OpenSessions())
}
