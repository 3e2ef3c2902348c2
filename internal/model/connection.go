// Package model はドメインモデルを定義する。
package model

import "time"

// ConnectionStatus はつながりリクエストの状態を表す。
type ConnectionStatus string

const (
	// ConnectionStatusPending は承認待ちの状態。
	ConnectionStatusPending ConnectionStatus = "pending"
	// ConnectionStatusAccepted は承認済みの状態。成功側の終端状態。
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	// ConnectionStatusRejected は拒否された状態。終端状態だが監査用に保持される。
	ConnectionStatusRejected ConnectionStatus = "rejected"
	// ConnectionStatusWithdrawn は申請者自身が取り下げた状態。終端状態。
	ConnectionStatusWithdrawn ConnectionStatus = "withdrawn"
)

// IsActive はペアの一意性制約の対象となる状態（pending/accepted）かを返す。
// 同一ペアに対してアクティブなエッジは同時に1つしか存在できない。
func (s ConnectionStatus) IsActive() bool {
	return s == ConnectionStatusPending || s == ConnectionStatusAccepted
}

// IsTerminal は以降の状態遷移が存在しない状態かを返す。
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionStatusAccepted || s == ConnectionStatusRejected || s == ConnectionStatusWithdrawn
}

// Connection は2ユーザー間のつながりリクエストのエッジを表す。
// 物理削除は行わず、状態遷移のみで管理する。
type Connection struct {
	ID          string
	RequesterID string
	RecipientID string
	Status      ConnectionStatus
	Message     string // 申請時の任意メッセージ（サニタイズ済みプレーンテキスト）
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConnectionFilter はつながり一覧取得時のフィルタを表す。
type ConnectionFilter string

const (
	// ConnectionFilterAll は自分が関与する全てのエッジ。
	ConnectionFilterAll ConnectionFilter = "all"
	// ConnectionFilterAccepted は承認済みのつながりのみ。
	ConnectionFilterAccepted ConnectionFilter = "accepted"
	// ConnectionFilterPending は承認待ちのエッジ（双方向）のみ。
	ConnectionFilterPending ConnectionFilter = "pending"
	// ConnectionFilterIncoming は自分宛ての承認待ちリクエストのみ。
	ConnectionFilterIncoming ConnectionFilter = "incoming"
	// ConnectionFilterOutgoing は自分が送った承認待ちリクエストのみ。
	ConnectionFilterOutgoing ConnectionFilter = "outgoing"
)

// ValidConnectionFilter は有効なフィルタ値かを判定する。
func ValidConnectionFilter(f ConnectionFilter) bool {
	switch f {
	case ConnectionFilterAll, ConnectionFilterAccepted, ConnectionFilterPending,
		ConnectionFilterIncoming, ConnectionFilterOutgoing:
		return true
	}
	return false
}
