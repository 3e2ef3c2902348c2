// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャーやトランスポート層から利用する。
type MetricsCollector interface {
	RecordDispatch(kind string)
	RecordDuplicateDispatch(kind string)
	RecordPushSuccess()
	RecordPushFailure()
	RecordHTTPStatus(statusCode int)
	SetOnlineUsers(count int)
	SetOpenSessions(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	dispatchTotal     *prometheus.CounterVec
	dispatchDuplicate *prometheus.CounterVec
	pushSuccess       prometheus.Counter
	pushFail          prometheus.Counter
	httpStatus        *prometheus.CounterVec
	onlineUsers       prometheus.Gauge
	openSessions      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwise_dispatch_total",
			Help: "通知ディスパッチの合計数（種別ごと）",
		}, []string{"kind"}),
		dispatchDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwise_dispatch_duplicate_total",
			Help: "冪等キー重複で抑止されたディスパッチの合計数（種別ごと）",
		}, []string{"kind"}),
		pushSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netwise_push_success_total",
			Help: "セッションへのプッシュ成功の合計数",
		}),
		pushFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netwise_push_fail_total",
			Help: "セッションへのプッシュ失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwise_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwise_online_users",
			Help: "1つ以上の生きているセッションを持つユーザー数",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwise_open_sessions",
			Help: "生きているWebSocketセッションの総数",
		}),
	}

	reg.MustRegister(
		c.dispatchTotal,
		c.dispatchDuplicate,
		c.pushSuccess,
		c.pushFail,
		c.httpStatus,
		c.onlineUsers,
		c.openSessions,
	)

	return c
}

// RecordDispatch は通知レコードの新規作成を記録する。
func (c *Collector) RecordDispatch(kind string) {
	c.dispatchTotal.WithLabelValues(kind).Inc()
}

// RecordDuplicateDispatch は冪等キー重複によるディスパッチ抑止を記録する。
func (c *Collector) RecordDuplicateDispatch(kind string) {
	c.dispatchDuplicate.WithLabelValues(kind).Inc()
}

// RecordPushSuccess はセッションへのプッシュ成功を記録する。
func (c *Collector) RecordPushSuccess() {
	c.pushSuccess.Inc()
}

// RecordPushFailure はセッションへのプッシュ失敗を記録する。
func (c *Collector) RecordPushFailure() {
	c.pushFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetOnlineUsers はオンラインユーザー数のゲージを更新する。
func (c *Collector) SetOnlineUsers(count int) {
	c.onlineUsers.Set(float64(count))
}

// SetOpenSessions は生きているセッション数のゲージを更新する。
func (c *Collector) SetOpenSessions(count int) {
	c.openSessions.Set(float64(count))
}

// HTTPMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func HTTPMiddleware(collector MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			collector.RecordHTTPStatus(sw.status)
		})
	}
}

// statusWriter はWriteHeaderで渡されたステータスコードを記録する。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack はWebSocketアップグレードのために下層のhttp.Hijackerへ委譲する。
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return hj.Hijack()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
