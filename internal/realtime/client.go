package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/netwise/internal/notify"
)

// メッセージ種別。クライアントとのワイヤプロトコルを構成する。
const (
	messageTypeAnnounce     = "announce"
	messageTypeAnnounced    = "announced"
	messageTypeError        = "error"
	messageTypeNotification = "notification"
)

// clientMessage はクライアントから受信するメッセージ。
// 現在のプロトコルではannounceのみ意味を持つ。
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// serverMessage はサーバーからクライアントへ送るメッセージ。
type serverMessage struct {
	Type         string              `json:"type"`
	UserID       string              `json:"user_id,omitempty"`
	Error        string              `json:"error,omitempty"`
	Notification *notify.PushMessage `json:"notification,omitempty"`
}

// session は1本のWebSocket接続を表す。
type session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// send はwritePumpへの送信バッファ。closeで閉じる。
	send chan []byte

	closeOnce sync.Once
}

// readPump はクライアントからの受信を処理する。
// 最初のメッセージはアナウンスでなければならず、期限内に届かない・
// トークンが無効な場合は接続を閉じる。アナウンス成立後は
// pongによる死活監視のためにループを維持する。
// 戻るときに必ずセッションを後片付けする。呼び出し元goroutineで実行される。
func (s *session) readPump() {
	defer s.hub.removeSession(s)

	s.conn.SetReadLimit(s.hub.config.MaxMessageSize)

	if !s.awaitAnnounce() {
		return
	}

	// アナウンス成立後はping/pongで読み取りデッドラインを更新する
	pongWait := s.hub.config.PingInterval * 2
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// 以後のクライアントメッセージは読み捨てる。
		// 読み取りエラー（正常クローズ含む）でポンプを終了する。
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read error",
					slog.String("session_id", s.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// awaitAnnounce は最初のアナウンスメッセージを待ち、トークンを検証して
// セッションをユーザーに紐付ける。成立すればtrueを返す。
func (s *session) awaitAnnounce() bool {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.config.AnnounceDeadline))

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		slog.Debug("session closed before announce", slog.String("session_id", s.id))
		return false
	}

	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != messageTypeAnnounce {
		s.sendError("アナウンスメッセージが必要です")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.hub.config.AnnounceDeadline)
	defer cancel()

	userID, err := s.hub.resolver.ResolveToken(ctx, msg.Token)
	if err != nil {
		slog.Info("announce rejected",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
		s.sendError("認証に失敗しました")
		return false
	}

	s.hub.presence.Register(userID, s.id)
	s.hub.updateGauges()

	slog.Info("session announced",
		slog.String("session_id", s.id),
		slog.String("user_id", userID),
	)

	ack, _ := json.Marshal(serverMessage{
		Type:   messageTypeAnnounced,
		UserID: userID,
	})
	select {
	case s.send <- ack:
	default:
	}

	return true
}

// sendError はエラー応答をベストエフォートで送る。
func (s *session) sendError(message string) {
	payload, _ := json.Marshal(serverMessage{
		Type:  messageTypeError,
		Error: message,
	})
	select {
	case s.send <- payload:
	default:
	}
	// sendチャネルはcloseされてもバッファ残量がwritePumpで排出されるため、
	// ここで配送を待つ必要はない
}

// writePump は送信バッファの内容を書き込みデッドライン付きで接続へ流し、
// 定期的にpingを送る。sendチャネルが閉じられるか書き込みに失敗したら終了する。
func (s *session) writePump() {
	ticker := time.NewTicker(s.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.PushTimeout))
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.PushTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				// 書き込み失敗はこのセッションの終わり。readPump側の
				// エラー検知経由で後片付けされる。
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.PushTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close はsendチャネルを閉じてwritePumpを終了させる。複数回呼んでも安全。
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}
