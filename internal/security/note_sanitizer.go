// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoteSanitizerService はつながりリクエストの添付メッセージと
// 通知本文をサニタイズし、XSS攻撃などのセキュリティリスクから
// ユーザーを保護する。bluemondayライブラリの厳格ポリシーで
// HTMLタグを一切通さない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NoteSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
// つながりリクエストのメッセージ保存前に使用される。
type NoteSanitizerService interface {
	// Sanitize は入力テキストからHTMLタグとイベント属性を全て除去した
	// プレーンテキストを返す。前後の空白はトリムされる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// noteSanitizer はNoteSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerServiceの新しいインスタンスを生成する。
// メッセージはプレーンテキストとして扱うため、タグを一切許可しない
// StrictPolicyを使用する。script, iframe, imgを含む全タグが除去される。
func NewNoteSanitizer() *noteSanitizer {
	return &noteSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストをサニタイズしてプレーンテキストを返す。
func (s *noteSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
