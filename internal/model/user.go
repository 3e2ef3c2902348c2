// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ユーザー登録・プロフィール編集は外部のアカウント基盤が所有し、
// 本サービスは識別子の参照のみを行う。
type User struct {
	ID        string
	Email     string
	Name      string
	Headline  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションの発行（ログインフロー）は外部の認証基盤が行い、
// 本サービスはトークンの検証とユーザー識別子への解決のみを行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
