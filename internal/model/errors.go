// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, connection, notification, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeSelfConnection       = "SELF_CONNECTION"
	ErrCodeAlreadyConnected     = "ALREADY_CONNECTED"
	ErrCodeAlreadyPending       = "ALREADY_PENDING"
	ErrCodeNotAuthorized        = "NOT_AUTHORIZED"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeRequestCooldown      = "REQUEST_COOLDOWN"
	ErrCodeConnectionNotFound   = "CONNECTION_NOT_FOUND"
	ErrCodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeInvalidFilter        = "INVALID_FILTER"
	ErrCodeInvalidCursor        = "INVALID_CURSOR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSelfConnectionError は自分自身へのつながりリクエストエラーを生成する。
func NewSelfConnectionError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfConnection,
		Message:  "自分自身につながりリクエストを送ることはできません。",
		Category: "validation",
		Action:   "別のユーザーを指定してください。",
	}
}

// NewAlreadyConnectedError は既につながり済みのペアへのリクエストエラーを生成する。
func NewAlreadyConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyConnected,
		Message:  "このユーザーとは既につながっています。",
		Category: "connection",
		Action:   "つながり一覧を確認してください。",
	}
}

// NewAlreadyPendingError は承認待ちのエッジが既に存在する場合のエラーを生成する。
// どちらの方向のリクエストが存在する場合でも同じエラーを返す。
func NewAlreadyPendingError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyPending,
		Message:  "このユーザーとの間に承認待ちのリクエストが既に存在します。",
		Category: "connection",
		Action:   "相手の承認を待つか、受信済みリクエストを確認してください。",
	}
}

// NewNotAuthorizedError は操作権限のないユーザーによる状態遷移エラーを生成する。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "このリクエストを操作する権限がありません。",
		Category: "connection",
		Action:   "自分宛てのリクエストのみ承認・拒否できます。",
	}
}

// NewInvalidStateError は現在の状態から許可されない遷移エラーを生成する。
// 並行する承認/拒否の競合に敗れた側にもこのエラーが返る。
func NewInvalidStateError(current ConnectionStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("現在の状態（%s）ではこの操作は実行できません。", current),
		Category: "connection",
		Action:   "最新のリクエスト状態を確認してください。",
	}
}

// NewRequestCooldownError は再リクエストのクールダウン期間中エラーを生成する。
func NewRequestCooldownError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestCooldown,
		Message:  "拒否または取り下げ後の再リクエストはまだできません。",
		Category: "connection",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewConnectionNotFoundError はつながりリクエストが見つからない場合のエラーを生成する。
func NewConnectionNotFoundError(connectionID string) *APIError {
	return &APIError{
		Code:     ErrCodeConnectionNotFound,
		Message:  fmt.Sprintf("指定されたつながりリクエストが見つかりません: %s", connectionID),
		Category: "connection",
		Action:   "リクエストIDを確認してください。",
	}
}

// NewNotificationNotFoundError は通知が見つからない場合のエラーを生成する。
func NewNotificationNotFoundError(notificationID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotificationNotFound,
		Message:  fmt.Sprintf("指定された通知が見つかりません: %s", notificationID),
		Category: "notification",
		Action:   "通知IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "validation",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s", filter),
		Category: "validation",
		Action:   "フィルタには all、accepted、pending、incoming、outgoing のいずれかを指定してください。",
	}
}

// NewInvalidCursorError は無効なページネーションカーソルエラーを生成する。
func NewInvalidCursorError(cursor string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソル値です: %s", cursor),
		Category: "validation",
		Action:   "レスポンスのnext_cursorをそのまま指定してください。",
	}
}
