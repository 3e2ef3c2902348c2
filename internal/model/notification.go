// Package model はドメインモデルを定義する。
package model

import "time"

// NotificationKind は通知の種別を表す。
type NotificationKind string

const (
	// NotificationConnectionRequested はつながりリクエスト受信の通知。
	NotificationConnectionRequested NotificationKind = "connection_requested"
	// NotificationConnectionAccepted はつながりリクエスト承認の通知。
	NotificationConnectionAccepted NotificationKind = "connection_accepted"
	// NotificationPostLiked は投稿へのいいねの通知。
	NotificationPostLiked NotificationKind = "post_liked"
	// NotificationPostCommented は投稿へのコメントの通知。
	NotificationPostCommented NotificationKind = "post_commented"
)

// ValidNotificationKind は有効な通知種別かを判定する。
func ValidNotificationKind(k NotificationKind) bool {
	switch k {
	case NotificationConnectionRequested, NotificationConnectionAccepted,
		NotificationPostLiked, NotificationPostCommented:
		return true
	}
	return false
}

// Notification は受信者ごとの永続通知レコードを表す。
// ディスパッチャのみが作成し、受信者によるmark readのみが変更できる。
// 受信者のオンライン状態とは独立して存在する。
type Notification struct {
	ID          string
	RecipientID string
	Kind        NotificationKind
	ActorID     string // 通知を発生させたユーザー
	SubjectID   string // 対象の参照（エッジID、投稿ID等）
	Message     string // 付随メッセージ（つながりリクエストの添え書き等）
	// IdempotencyKey は同一の契機（エッジID+種別等）からの重複作成を防ぐ。
	// 受信者ごとに一意。
	IdempotencyKey string
	Read           bool
	CreatedAt      time.Time
	ReadAt         *time.Time
}
