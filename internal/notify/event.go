// Package notify は通知イベントの永続化とライブ配信を提供する。
//
// ディスパッチは「永続化してからベストエフォートでプッシュ」の二段階で行う。
// 永続化の失敗はディスパッチ全体の失敗となるが、プッシュの失敗は
// ログに残して握りつぶす。受信者は次の一覧取得で必ず追いつける。
package notify

import "github.com/hitoshi/netwise/internal/model"

// Event はディスパッチ対象の通知イベントを表す。
// つながりリクエスト・承認はconnectionサービスから、
// いいね・コメントは投稿レイヤーから発行される。
type Event struct {
	Kind        model.NotificationKind
	RecipientID string
	// ActorID はイベントを起こしたユーザー。
	ActorID string
	// SubjectID はイベントの対象エンティティ（つながりID、投稿ID等）。
	SubjectID string
	// Message は通知の表示用本文。
	Message string
}

// IdempotencyKey は受信者ごとの冪等キーを返す。
// 同じ操作の再実行（リトライ、二重クリック）は同じキーになり、
// 通知レコードが二重に作られることを防ぐ。
func (e Event) IdempotencyKey() string {
	return string(e.Kind) + ":" + e.SubjectID + ":" + e.ActorID
}

// PushMessage はライブセッションへ配信されるペイロード。
type PushMessage struct {
	NotificationID string `json:"notification_id"`
	Kind           string `json:"kind"`
	ActorID        string `json:"actor_id"`
	SubjectID      string `json:"subject_id"`
	Message        string `json:"message"`
	CreatedAt      string `json:"created_at"`
}
