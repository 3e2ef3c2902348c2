// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/netwise/internal/model"
)

// ErrDuplicateActiveEdge はアクティブなエッジ（pending/accepted）が
// 既に存在するペアへのINSERTが一意制約に違反した場合に返される。
// 事前チェックとINSERTの間に競合が起きた場合もこのエラーで検出できる。
var ErrDuplicateActiveEdge = errors.New("active connection edge already exists for the pair")

// UserRepository はユーザーデータの永続化インターフェース。
// ユーザーの作成・更新は外部のアカウント基盤が所有し、本サービスは参照のみ行う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// ExistsByID は指定IDのユーザーが存在するかを返す。
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションの発行は外部の認証基盤が行い、本サービスは検証と失効のみを行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ConnectionRepository はつながりリクエストのエッジの永続化インターフェース。
// 状態遷移のルール自体はconnectionパッケージのサービス層が所有し、
// リポジトリは排他制御付きの読み書きのみを提供する。
type ConnectionRepository interface {
	// FindByID は指定IDのエッジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Connection, error)

	// FindActiveByPair は無順序ペアのアクティブなエッジ（pending/accepted）を
	// 方向を問わず検索する。見つからない場合はnilを返す。
	FindActiveByPair(ctx context.Context, userA, userB string) (*model.Connection, error)

	// FindLatestTerminalByPair は無順序ペアの最新の終端エッジ
	// （rejected/withdrawn）を検索する。再リクエストのクールダウン判定に使う。
	// 見つからない場合はnilを返す。
	FindLatestTerminalByPair(ctx context.Context, userA, userB string) (*model.Connection, error)

	// Create は新規エッジを作成する。アクティブなエッジが既に存在するペアの場合は
	// ErrDuplicateActiveEdgeを返す。
	Create(ctx context.Context, conn *model.Connection) error

	// UpdateStatusIfPending はエッジがpendingの場合に限り状態を遷移させる。
	// 遷移できた場合はtrueを返す。falseは別の遷移が先行したことを意味する
	// （compare-and-swap: 同一エッジへの並行遷移は最初の1件だけが勝つ）。
	UpdateStatusIfPending(ctx context.Context, id string, next model.ConnectionStatus, now time.Time) (bool, error)

	// ListByUser は指定ユーザーが関与するエッジの一覧をフィルタ付きで返す。
	// 更新日時の降順で返す。
	ListByUser(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error)
}

// NotificationRepository は通知レコードの永続化インターフェース。
type NotificationRepository interface {
	// Append は通知レコードを冪等に追記する。
	// (recipient_id, idempotency_key)が既存の場合はレコードを作成せず、
	// created=falseと既存レコードを返す。
	Append(ctx context.Context, n *model.Notification) (created bool, existing *model.Notification, err error)

	// ListByRecipient は受信者の通知一覧を(created_at, id)の降順で返す。
	// cursorがゼロ値の場合は先頭から取得する。cursorIDが空の場合は
	// created_atのみで比較する。
	ListByRecipient(ctx context.Context, recipientID string, cursor time.Time, cursorID string, limit int) ([]*model.Notification, error)

	// CountUnread は受信者の未読通知数を返す。
	CountUnread(ctx context.Context, recipientID string) (int, error)

	// MarkRead は受信者自身の通知を既読にする。
	// 該当通知が存在しない（または他人の通知の）場合はfalseを返す。
	MarkRead(ctx context.Context, recipientID, notificationID string, at time.Time) (bool, error)

	// MarkAllRead は受信者の全未読通知を既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}
