package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/netwise/internal/metrics"
	"github.com/hitoshi/netwise/internal/middleware"
)

// HealthChecker はヘルスチェックで疎通確認を行う依存の抽象。
// *sql.DB がそのまま満たす。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証（セッションの参照と破棄）
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// つながり
	ConnectionService ConnectionServiceInterface

	// 通知
	NotificationService NotificationServiceInterface
	NotificationConfig  NotificationHandlerConfig

	// リアルタイム配信（WebSocketアップグレードハンドラー）
	WSHandler http.Handler

	// 運用系
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORSMiddleware
//	→ (認証グループ) SessionMiddleware → RateLimitMiddleware(General) → CSRF
//
// /health, /metrics, /ws, /api/csrf-token, /auth/* は認証グループの外に配置する。
// /ws は接続確立後にannounceメッセージで認証するため、セッションミドルウェアを通さない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.Metrics != nil {
		r.Use(metrics.HTTPMiddleware(deps.Metrics))
	}

	// CORS ミドルウェアを全ルートに適用
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	connHandler := NewConnectionHandler(deps.ConnectionService)
	notifHandler := NewNotificationHandler(deps.NotificationService, deps.NotificationConfig)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.WSHandler != nil {
		r.Method(http.MethodGet, "/ws", deps.WSHandler)
	}

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルートはセッションミドルウェアの外でトークンを直接検証する
	if deps.AuthService != nil {
		authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
			r.Post("/logout-all", authHandler.LogoutAll)
		})
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// つながり管理
		r.Route("/api/connections", func(r chi.Router) {
			// POST /api/connections - つながり申請（申請専用レート制限を追加）
			r.With(deps.RateLimiter.ConnectRequestMiddleware()).Post("/", connHandler.RequestConnection)

			r.Get("/", connHandler.ListConnections)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/accept", connHandler.AcceptConnection)
				r.Post("/reject", connHandler.RejectConnection)
				r.Post("/withdraw", connHandler.WithdrawConnection)
			})
		})

		// 通知管理
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notifHandler.ListNotifications)
			r.Post("/read-all", notifHandler.MarkAllRead)
			r.Post("/{id}/read", notifHandler.MarkRead)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			if err := checker.Ping(); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
