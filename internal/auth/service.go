// Package auth はセッショントークンの検証とユーザー解決を提供する。
//
// アカウント登録・ログイン自体は外部の認証基盤が担い、本サービスは
// sessionsテーブルに発行済みのトークンを検証して使うだけの立場となる。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/netwise/internal/model"
	"github.com/hitoshi/netwise/internal/repository"
)

// Service はセッショントークンからユーザーを解決するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// ResolveToken はセッショントークンを検証し、紐付くユーザーIDを返す。
// トークンが空・未知・期限切れの場合は認証エラーを返す。
// HTTPミドルウェアとWebSocketのアナウンス処理の双方から呼ばれる。
func (s *Service) ResolveToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		// 未知トークンと期限切れトークンは区別せず同じエラーにする
		return "", model.NewUnauthorizedError()
	}

	return session.UserID, nil
}

// ResolveUser はセッショントークンを検証し、紐付くユーザーを返す。
func (s *Service) ResolveUser(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// セッションは生きているがユーザーが消えている異常系
		slog.Warn("session references missing user", slog.String("user_id", userID))
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session token is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session revoked")
	return nil
}

// LogoutAll はトークンの持ち主の全セッションを破棄する。
// 端末紛失時などに他端末のセッションもまとめて無効化する用途。
func (s *Service) LogoutAll(ctx context.Context, token string) error {
	userID, err := s.ResolveToken(ctx, token)
	if err != nil {
		return err
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	slog.Info("all sessions revoked", slog.String("user_id", userID))
	return nil
}
